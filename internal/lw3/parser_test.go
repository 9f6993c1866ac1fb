package lw3

import (
	"reflect"
	"testing"
)

func feedAll(p *BlockParser, lines ...string) []Message {
	var out []Message
	for _, l := range lines {
		if msg, ok := p.Feed(l); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestParserStandaloneLine(t *testing.T) {
	p := NewBlockParser()

	msgs := feedAll(p, "CHG /MEDIA/VIDEO/I1.Text=Cam")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Kind != MessageLine || msgs[0].Body != "CHG /MEDIA/VIDEO/I1.Text=Cam" {
		t.Errorf("message = %+v", msgs[0])
	}
	if p.State() != StateReady {
		t.Errorf("state = %v, want READY", p.State())
	}
}

func TestParserBlock(t *testing.T) {
	p := NewBlockParser()

	if _, ok := p.Feed("{0042"); ok {
		t.Fatal("block open must not emit")
	}
	if p.State() != StateInBlock {
		t.Fatalf("state = %v, want IN_BLOCK", p.State())
	}

	msgs := feedAll(p, "pr /MEDIA/VIDEO/I1.Text=Cam 1", "pr /MEDIA/VIDEO/I2.Text=Cam 2", "}")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Kind != MessageBlock || msg.ID != "0042" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Body != "pr /MEDIA/VIDEO/I1.Text=Cam 1\r\npr /MEDIA/VIDEO/I2.Text=Cam 2" {
		t.Errorf("body = %q", msg.Body)
	}
	if want := []string{"pr /MEDIA/VIDEO/I1.Text=Cam 1", "pr /MEDIA/VIDEO/I2.Text=Cam 2"}; !reflect.DeepEqual(msg.Lines(), want) {
		t.Errorf("Lines = %q", msg.Lines())
	}
	if p.State() != StateReady {
		t.Errorf("state after close = %v", p.State())
	}
}

func TestParserErrorLines(t *testing.T) {
	p := NewBlockParser()

	msgs := feedAll(p, "{0001", "pE /MEDIA/FOO %E001:Not exists", "pr /.ProductName=MMX8x8", "}")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Errors != "pE /MEDIA/FOO %E001:Not exists" {
		t.Errorf("errors = %q", msgs[0].Errors)
	}
	if msgs[0].Body != "pr /.ProductName=MMX8x8" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestParserEmptyBlock(t *testing.T) {
	p := NewBlockParser()

	msgs := feedAll(p, "{0007", "}")
	if len(msgs) != 1 || msgs[0].Body != "" || msgs[0].ID != "0007" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Lines() != nil {
		t.Errorf("Lines of empty block = %q", msgs[0].Lines())
	}
}

func TestParserBlocksDoNotLeak(t *testing.T) {
	p := NewBlockParser()

	msgs := feedAll(p, "{0001", "nE bad", "a", "}", "{0002", "b", "}")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[1].Body != "b" || msgs[1].Errors != "" {
		t.Errorf("second block carries state from the first: %+v", msgs[1])
	}
}

func TestParserReset(t *testing.T) {
	p := NewBlockParser()
	p.Feed("{0003")
	p.Feed("half")
	p.Reset()

	msgs := feedAll(p, "pr /X=1")
	if len(msgs) != 1 || msgs[0].Kind != MessageLine {
		t.Errorf("after Reset: %+v", msgs)
	}
}

func TestIsErrorLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"pE /X", true},
		{"nE", true},
		{"mE x", true},
		{"E", false},
		{"pr /X=1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isErrorLine(tt.line); got != tt.want {
			t.Errorf("isErrorLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
