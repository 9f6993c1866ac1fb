package lw3

import (
	"reflect"
	"testing"
)

func TestFramerSplitsLines(t *testing.T) {
	f := NewLineFramer()

	got := f.Feed([]byte("pr /A=1\r\npr /B=2\r\npart"))
	want := []string{"pr /A=1", "pr /B=2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Feed = %q, want %q", got, want)
	}
	if f.Pending() != len("part") {
		t.Errorf("Pending = %d, want %d", f.Pending(), len("part"))
	}

	got = f.Feed([]byte("ial\r\n"))
	if !reflect.DeepEqual(got, []string{"partial"}) {
		t.Errorf("Feed tail = %q", got)
	}
	if f.Pending() != 0 {
		t.Errorf("Pending after flush = %d", f.Pending())
	}
}

func TestFramerChunkIndependence(t *testing.T) {
	stream := "{0000\r\npr /.ProductName=MX2-8x8-HDMI20\r\n}\r\nCHG /MEDIA/XP/VIDEO.DestinationConnectionList=I1;I2\r\n\r\n"

	reference := NewLineFramer().Feed([]byte(stream))

	tests := []struct {
		name  string
		sizes []int
	}{
		{"bytewise", []int{1}},
		{"pairs", []int{2}},
		{"odd", []int{3, 5, 7}},
		{"cr lf split", []int{6, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewLineFramer()
			var got []string
			data := []byte(stream)
			for i := 0; len(data) > 0; i++ {
				n := tt.sizes[i%len(tt.sizes)]
				if n > len(data) {
					n = len(data)
				}
				got = append(got, f.Feed(data[:n])...)
				data = data[n:]
			}
			if !reflect.DeepEqual(got, reference) {
				t.Errorf("lines = %q, want %q", got, reference)
			}
		})
	}
}

func TestFramerKeepsLoneCR(t *testing.T) {
	f := NewLineFramer()

	if got := f.Feed([]byte("abc\r")); len(got) != 0 {
		t.Fatalf("Feed = %q, want nothing", got)
	}
	if got := f.Feed([]byte("\n")); !reflect.DeepEqual(got, []string{"abc"}) {
		t.Errorf("Feed = %q, want [abc]", got)
	}
}

func TestFramerEmptyLine(t *testing.T) {
	f := NewLineFramer()
	got := f.Feed([]byte("\r\n\r\n"))
	if !reflect.DeepEqual(got, []string{"", ""}) {
		t.Errorf("Feed = %q, want two empty lines", got)
	}
}

func TestFramerReset(t *testing.T) {
	f := NewLineFramer()
	f.Feed([]byte("half"))
	f.Reset()
	if f.Pending() != 0 {
		t.Fatalf("Pending after Reset = %d", f.Pending())
	}
	if got := f.Feed([]byte("x\r\n")); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("Feed after Reset = %q", got)
	}
}
