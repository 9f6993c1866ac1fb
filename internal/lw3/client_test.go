package lw3

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendWhileDisconnected(t *testing.T) {
	c := newTestClient(t, newFakeDevice(t, nil), Options{SkipBringUp: true})

	called := false
	err := c.Send("GET /.ProductName", func(string) { called = true })
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send err = %v, want ErrNotConnected", err)
	}
	if called {
		t.Error("callback invoked for a dropped command")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending = %d", c.Pending())
	}
}

func TestSendAndResolve(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{SkipBringUp: true})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.State() != Connected || c.Session() == "" {
		t.Fatalf("state = %v, session = %q", c.State(), c.Session())
	}

	got := make(chan string, 1)
	if err := c.Send("GET /.ProductName", func(body string) { got <- body }); err != nil {
		t.Fatalf("Send: %v", err)
	}

	req := dev.Next()
	if req.ID != "0000" || req.Command != "GET /.ProductName" {
		t.Fatalf("request = %+v", req)
	}
	dev.Reply(req.ID, "pr /.ProductName=MMX8x8-HDMI-4K-A")

	select {
	case body := <-got:
		if body != "pr /.ProductName=MMX8x8-HDMI-4K-A" {
			t.Errorf("body = %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestConnectTwice(t *testing.T) {
	c := newTestClient(t, newFakeDevice(t, nil), Options{SkipBringUp: true})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect err = %v", err)
	}
}

func TestSolicitedBlockNotDispatched(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{SkipBringUp: true})

	var mu sync.Mutex
	var signals []matrix.ChangeKind
	c.OnChange(func(kind matrix.ChangeKind) {
		mu.Lock()
		signals = append(signals, kind)
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resolved := make(chan struct{})
	c.Send("GET /MEDIA/VIDEO/XP.DestinationConnectionList", func(string) { close(resolved) })
	req := dev.Next()
	dev.Reply(req.ID, "pr /MEDIA/VIDEO/XP.DestinationConnectionList=I1;I2")
	<-resolved

	// a later push proves the reader has moved past the reply
	dev.Push("CHG /MEDIA/VIDEO/I5.Text=Doc Cam")
	eventually(t, "push to be applied", func() bool {
		return c.Model().Inputs()["I5"] == "Doc Cam"
	})

	if got := c.Model().Destinations(); len(got) != 0 {
		t.Errorf("consumed reply reached the dispatcher: destinations = %q", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(signals, []matrix.ChangeKind{matrix.ChangeStructural}) {
		t.Errorf("signals = %v", signals)
	}
}

func TestUnsolicitedBlockDispatched(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{SkipBringUp: true})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	dev.Reply("0999", "pr /MEDIA/VIDEO/XP.DestinationConnectionList=I2;;I1;")
	eventually(t, "destinations", func() bool {
		return reflect.DeepEqual(c.Model().Destinations(), []string{"I2", "", "I1"})
	})
}

func TestDeviceErrorStillDelivered(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{SkipBringUp: true})
	c.Connect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		req := dev.Next()
		dev.Reply(req.ID, "pE /MEDIA/FOO %E001:Path not found", "pr /.X=1")
	}()

	body, err := c.SendContext(ctx, "GET /MEDIA/FOO.*")
	if err != nil {
		t.Fatalf("SendContext: %v", err)
	}
	if body != "pr /.X=1" {
		t.Errorf("body = %q", body)
	}
}

func TestDisconnectAbandonsPending(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{SkipBringUp: true})

	transitions := make(chan ConnState, 8)
	c.OnStateChange(func(from, to ConnState, session string) {
		transitions <- to
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := c.SendContext(context.Background(), "GET /.ProductName")
		errc <- err
	}()

	dev.Next()
	dev.Hangup()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrConnectionReset) {
			t.Errorf("err = %v, want ErrConnectionReset", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not abandoned")
	}

	eventually(t, "disconnect", func() bool { return c.State() == Disconnected })
	eventually(t, "disconnect listener", func() bool { return len(transitions) == 3 })
	if c.Pending() != 0 {
		t.Errorf("Pending = %d", c.Pending())
	}

	var seen []ConnState
	for len(transitions) > 0 {
		seen = append(seen, <-transitions)
	}
	want := []ConnState{Connecting, Connected, Disconnected}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}

func TestRequestTimeout(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{
		SkipBringUp:    true,
		RequestTimeout: 20 * time.Millisecond,
		SweepInterval:  5 * time.Millisecond,
	})
	c.Connect(context.Background())

	go dev.Next()

	_, err := c.SendContext(context.Background(), "GET /.ProductName")
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("err = %v, want ErrRequestTimeout", err)
	}
}

func TestStrictTransactionIDs(t *testing.T) {
	tests := []struct {
		name    string
		strict  bool
		wantErr error
	}{
		{"strict refuses", true, ErrTransactionIDInUse},
		{"default overwrites", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(t, nil)
			c := newTestClient(t, dev, Options{SkipBringUp: true, StrictIDs: tt.strict})
			c.Connect(context.Background())

			// next id is 0000
			c.registry.Register("0000", "GET /stale", nil, nil)

			err := c.Send("GET /.ProductName", nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Send err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if req := dev.Next(); req.Command != "GET /.ProductName" {
					t.Errorf("request = %+v", req)
				}
			} else if got := dev.Received(); len(got) != 0 {
				t.Errorf("refused command reached the device: %q", got)
			}
		})
	}
}

func TestCommandListener(t *testing.T) {
	dev := newFakeDevice(t, nil)
	c := newTestClient(t, dev, Options{SkipBringUp: true})

	var got []string
	c.OnCommand(func(session, txid, command string) {
		got = append(got, txid+"#"+command)
	})
	c.Connect(context.Background())

	c.Send("OPEN /MEDIA/VIDEO/XP", nil)
	c.Send("GET /.ProductName", nil)

	want := []string{"0000#OPEN /MEDIA/VIDEO/XP", "0001#GET /.ProductName"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %q, want %q", got, want)
	}
}

func TestSetTargetResetsModel(t *testing.T) {
	first := newFakeDevice(t, nil)
	c := newTestClient(t, first, Options{SkipBringUp: true})
	c.Connect(context.Background())

	c.Model().SetPort("I1", "old")
	oldSession := c.Session()

	second := newFakeDevice(t, nil)
	if err := c.SetTarget(context.Background(), second); err != nil {
		t.Fatalf("SetTarget: %v", err)
	}

	if len(c.Model().Inputs()) != 0 {
		t.Errorf("model survived retarget: %v", c.Model().Inputs())
	}
	if c.Session() == oldSession {
		t.Error("session id not renewed")
	}
	if second.Dials() != 1 {
		t.Errorf("new target dialled %d times", second.Dials())
	}

	c.Send("GET /.ProductName", nil)
	if req := second.Next(); req.ID != "0000" {
		t.Errorf("first id on new target = %q", req.ID)
	}
}

// stallingConn fails its Read once failRead is closed and then hangs in
// Close until release is closed.
type stallingConn struct {
	failRead chan struct{}
	closing  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newStallingConn() *stallingConn {
	return &stallingConn{
		failRead: make(chan struct{}),
		closing:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *stallingConn) Read(p []byte) (int, error) {
	<-s.failRead
	return 0, io.ErrUnexpectedEOF
}

func (s *stallingConn) Write(p []byte) (int, error) {
	return len(p), nil
}

func (s *stallingConn) Close() error {
	s.once.Do(func() { close(s.closing) })
	<-s.release
	return nil
}

// handoverDialer returns first on the first dial and the device afterwards.
type handoverDialer struct {
	*fakeDevice

	mu    sync.Mutex
	first io.ReadWriteCloser
}

func (d *handoverDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	first := d.first
	d.first = nil
	d.mu.Unlock()

	if first != nil {
		return first, nil
	}
	return d.fakeDevice.Dial(ctx)
}

func TestLateDisconnectKeepsNewSession(t *testing.T) {
	dev := newFakeDevice(t, nil)
	stall := newStallingConn()
	c := newTestClient(t, &handoverDialer{fakeDevice: dev, first: stall}, Options{SkipBringUp: true})

	dropped := make(chan string, 4)
	c.OnStateChange(func(from, to ConnState, session string) {
		if from == Connected && to == Disconnected {
			dropped <- session
		}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	first := c.Session()

	close(stall.failRead)
	select {
	case <-stall.closing:
	case <-time.After(2 * time.Second):
		t.Fatal("first connection not closed")
	}

	// the first reader is still inside Close
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	got := make(chan string, 1)
	if err := c.Send("GET /.ProductName", func(body string) { got <- body }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	req := dev.Next()

	close(stall.release)
	select {
	case session := <-dropped:
		if session != first {
			t.Errorf("disconnected session = %q, want %q", session, first)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first session never reported disconnected")
	}

	if c.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", c.Pending())
	}
	dev.Reply(req.ID, "pr /.ProductName=MMX8x8-HDMI-4K-A")

	select {
	case body := <-got:
		if body != "pr /.ProductName=MMX8x8-HDMI-4K-A" {
			t.Errorf("body = %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reply for the new session was lost")
	}
}

func TestInvalidTransitionLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	c := NewClient(newFakeDevice(t, nil), matrix.NewModel(), Options{SkipBringUp: true}, zap.New(core))

	c.mu.Lock()
	ok := c.transition(Connected)
	c.mu.Unlock()

	if ok || c.State() != Disconnected {
		t.Errorf("transition = %v, state = %v", ok, c.State())
	}
	if n := logs.FilterMessage("Connection state not changed").Len(); n != 1 {
		t.Errorf("logged %d times, want 1", n)
	}
}
