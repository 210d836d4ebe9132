package bridge

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandterm/sandterm/internal/sandbox"
)

// mockTransport is an in-memory Transport. Inbound frames are scripted with
// push; outbound frames are collected on a buffered channel.
type mockTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

func (t *mockTransport) push(p []byte) { t.in <- p }

func (t *mockTransport) ReadFrame() ([]byte, error) {
	// Drain frames pushed before a close so scripted input is never lost.
	select {
	case p := <-t.in:
		return p, nil
	default:
	}
	select {
	case p := <-t.in:
		return p, nil
	case <-t.closed:
		return nil, errors.New("transport closed")
	}
}

func (t *mockTransport) WriteFrame(p []byte) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	default:
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	t.out <- cp
	return nil
}

func (t *mockTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// collect drains outbound frames until the transport closes or the deadline
// passes.
func (t *mockTransport) collect(deadline time.Duration) [][]byte {
	var frames [][]byte
	timer := time.After(deadline)
	for {
		select {
		case f := <-t.out:
			frames = append(frames, f)
		case <-t.closed:
			// Drain anything written before the close.
			for {
				select {
				case f := <-t.out:
					frames = append(frames, f)
				default:
					return frames
				}
			}
		case <-timer:
			return frames
		}
	}
}

func newTestBridge(t *testing.T, rt *sandbox.MockRuntime) (*Bridge, *mockTransport, *sandbox.MockChannel) {
	t.Helper()
	h, err := rt.Create(t.Context(), sandbox.DefaultSpec())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	ch, err := h.OpenChannel(t.Context(), sandbox.ChannelConfig{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}
	tr := newMockTransport()
	b := New(Config{
		Transport: tr,
		Channel:   ch,
		Cols:      80,
		Rows:      24,
	})
	return b, tr, ch.(*sandbox.MockChannel)
}

func TestInitSequenceBeforeRelay(t *testing.T) {
	b, tr, ch := newTestBridge(t, sandbox.NewMockRuntime())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	tr.push([]byte("ls\n"))
	tr.Close()
	<-done

	input := string(ch.Input())
	initEnd := strings.Index(input, "clear\n")
	if initEnd < 0 {
		t.Fatalf("init sequence missing from channel input: %q", input)
	}
	if !strings.Contains(input[:initEnd+6], "TERM=xterm-256color") {
		t.Error("init sequence should export TERM")
	}
	if !strings.Contains(input[:initEnd], "COLUMNS=80 LINES=24") {
		t.Error("init sequence should export the session dimensions")
	}
	if ls := strings.Index(input, "ls\n"); ls >= 0 && ls < initEnd {
		t.Error("client input must not be relayed before the init sequence")
	}
}

func TestOutputChunking(t *testing.T) {
	b, tr, ch := newTestBridge(t, sandbox.NewMockRuntime())

	go b.Run()

	burst := bytes.Repeat([]byte{'x'}, 5000)
	ch.Emit(burst)

	var got []byte
	deadline := time.After(2 * time.Second)
	for len(got) < len(burst) {
		select {
		case f := <-tr.out:
			if len(f) > MaxFrameBytes {
				t.Fatalf("frame exceeds bound: %d > %d", len(f), MaxFrameBytes)
			}
			got = append(got, f...)
		case <-deadline:
			t.Fatalf("timed out, relayed %d of %d bytes", len(got), len(burst))
		}
	}

	if !bytes.Equal(got, burst) {
		t.Error("chunks must concatenate back to the original bytes in order")
	}
	tr.Close()
}

func TestBlockedCommandNotForwarded(t *testing.T) {
	b, tr, ch := newTestBridge(t, sandbox.NewMockRuntime())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	tr.push([]byte("reboot\n"))

	var warning []byte
	select {
	case warning = <-tr.out:
	case <-time.After(2 * time.Second):
		t.Fatal("no warning frame for a blocked command")
	}
	if !strings.Contains(string(warning), "reboot") {
		t.Errorf("warning should name the blocked command, got %q", warning)
	}

	tr.Close()
	<-done

	// Keystrokes streamed for echo fidelity, but the line never completed:
	// no terminator after the command, an interrupt instead.
	input := ch.Input()
	if !bytes.Contains(input, []byte("reboot")) {
		t.Error("keystrokes should still stream to the sandbox")
	}
	if bytes.Contains(input, []byte("reboot\n")) || bytes.Contains(input, []byte("reboot\r")) {
		t.Error("blocked command must not reach the shell as a completed line")
	}
	if !bytes.Contains(input, []byte{etx}) {
		t.Error("blocked line should be cancelled with an interrupt")
	}
}

func TestAllowedCommandForwarded(t *testing.T) {
	b, tr, ch := newTestBridge(t, sandbox.NewMockRuntime())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	tr.push([]byte("rebootable-script.sh\n"))
	tr.Close()
	<-done

	if !bytes.Contains(ch.Input(), []byte("rebootable-script.sh\n")) {
		t.Error("near-miss command names must pass through untouched")
	}
}

func TestTransportCloseReleasesChannelOnly(t *testing.T) {
	rt := sandbox.NewMockRuntime()
	b, tr, ch := newTestBridge(t, rt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	tr.Close()
	<-done

	if !ch.Closed() {
		t.Error("transport close should close the process channel")
	}
	if rt.LastHandle().Stopped() {
		t.Error("transport close must not stop the sandbox")
	}
	if b.State() != StateClosed {
		t.Errorf("bridge should end Closed, got %v", b.State())
	}
}

func TestChannelCloseNotifiesTransport(t *testing.T) {
	b, tr, ch := newTestBridge(t, sandbox.NewMockRuntime())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	ch.Close()
	<-done

	frames := tr.collect(2 * time.Second)
	var all []byte
	for _, f := range frames {
		all = append(all, f...)
	}
	if !strings.Contains(string(all), "shell closed") {
		t.Errorf("client should see a terminal error notice, got %q", all)
	}
	select {
	case <-tr.closed:
	default:
		t.Error("transport should be closed after the channel fails")
	}
}

func TestActivityCallbackPerFrame(t *testing.T) {
	rt := sandbox.NewMockRuntime()
	h, _ := rt.Create(t.Context(), sandbox.DefaultSpec())
	ch, _ := h.OpenChannel(t.Context(), sandbox.ChannelConfig{Cols: 80, Rows: 24})
	tr := newMockTransport()

	var mu sync.Mutex
	touches := 0
	b := New(Config{
		Transport: tr,
		Channel:   ch,
		Cols:      80,
		Rows:      24,
		OnActivity: func() {
			mu.Lock()
			touches++
			mu.Unlock()
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	tr.push([]byte("a"))
	tr.push([]byte("b"))
	tr.push([]byte("c\n"))
	tr.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if touches != 3 {
		t.Errorf("expected one activity bump per inbound frame, got %d", touches)
	}
}

func TestEndToEndEcho(t *testing.T) {
	rt := sandbox.NewMockRuntime()
	rt.EchoInput = true
	rt.LineHandler = func(line string) []byte {
		if strings.HasSuffix(line, "echo hi") {
			return []byte("hi\r\n$ ")
		}
		return []byte("$ ")
	}

	b, tr, _ := newTestBridge(t, rt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run()
	}()

	tr.push([]byte("echo hi\n"))

	deadline := time.After(2 * time.Second)
	var output []byte
	for !strings.Contains(string(output), "hi\r\n") {
		select {
		case f := <-tr.out:
			output = append(output, f...)
		case <-deadline:
			t.Fatalf("never saw command output, got %q", output)
		}
	}
	tr.Close()
	<-done
}
