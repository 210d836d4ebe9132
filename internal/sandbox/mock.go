package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
)

// MockRuntime is a fully scripted Runtime for tests. It records every spec
// it was asked to provision and exposes the handles and channels it handed
// out so tests can assert on resize calls, forwarded input, and teardown.
type MockRuntime struct {
	mu      sync.Mutex
	handles []*MockHandle
	seq     int

	// Failure injection.
	CreateErr error
	OpenErr   error
	StopErr   error

	// LineHandler, when set, scripts the shell: each completed input line is
	// passed in and the returned bytes are emitted as channel output.
	LineHandler func(line string) []byte

	// EchoInput mirrors every written byte back as output, approximating
	// remote PTY echo.
	EchoInput bool
}

// NewMockRuntime creates an empty scripted runtime.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{}
}

// Create returns a new mock handle, or CreateErr if failure is scripted.
func (r *MockRuntime) Create(ctx context.Context, spec Spec) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return nil, r.CreateErr
	}
	r.seq++
	h := &MockHandle{
		id:   fmt.Sprintf("mock-%d", r.seq),
		spec: spec,
		rt:   r,
	}
	r.handles = append(r.handles, h)
	return h, nil
}

// Handles returns every handle created so far.
func (r *MockRuntime) Handles() []*MockHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*MockHandle(nil), r.handles...)
}

// LastHandle returns the most recently created handle, or nil.
func (r *MockRuntime) LastHandle() *MockHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[len(r.handles)-1]
}

// MockHandle is a scripted sandbox.
type MockHandle struct {
	id   string
	spec Spec
	rt   *MockRuntime

	mu       sync.Mutex
	channels []*MockChannel
	stopped  bool
	removed  bool
}

func (h *MockHandle) ID() string { return h.id }

// Spec returns the spec this sandbox was provisioned with.
func (h *MockHandle) Spec() Spec { return h.spec }

func (h *MockHandle) OpenChannel(ctx context.Context, cfg ChannelConfig) (Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rt.OpenErr != nil {
		return nil, h.rt.OpenErr
	}
	if h.stopped {
		return nil, ErrClosed
	}
	ch := NewMockChannel(cfg)
	ch.lineHandler = h.rt.LineHandler
	ch.echoInput = h.rt.EchoInput
	h.channels = append(h.channels, ch)
	return ch, nil
}

func (h *MockHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rt.StopErr != nil {
		return h.rt.StopErr
	}
	h.stopped = true
	for _, ch := range h.channels {
		ch.Close()
	}
	if h.spec.AutoRemove {
		h.removed = true
	}
	return nil
}

func (h *MockHandle) Remove(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = true
	return nil
}

// Stopped reports whether Stop completed.
func (h *MockHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Removed reports whether the sandbox was removed (directly or by auto-remove).
func (h *MockHandle) Removed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removed
}

// Channels returns every channel opened on this handle.
func (h *MockHandle) Channels() []*MockChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*MockChannel(nil), h.channels...)
}

// LastChannel returns the most recently opened channel, or nil.
func (h *MockHandle) LastChannel() *MockChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.channels) == 0 {
		return nil
	}
	return h.channels[len(h.channels)-1]
}

// ResizeCall records one Resize invocation on a channel.
type ResizeCall struct {
	Cols, Rows int
}

// MockChannel is an in-memory process channel. Output is injected with Emit
// and read back through Read; everything written by the caller is captured
// for inspection.
type MockChannel struct {
	cfg ChannelConfig

	mu     sync.Mutex
	cond   *sync.Cond
	outBuf bytes.Buffer
	input  bytes.Buffer
	closed bool

	resizes []ResizeCall
	signals []os.Signal

	lineHandler func(string) []byte
	echoInput   bool
	lineBuf     bytes.Buffer
}

// NewMockChannel creates a channel detached from any handle.
func NewMockChannel(cfg ChannelConfig) *MockChannel {
	ch := &MockChannel{cfg: cfg}
	ch.cond = sync.NewCond(&ch.mu)
	return ch
}

// Config returns the channel configuration it was opened with.
func (c *MockChannel) Config() ChannelConfig { return c.cfg }

// Read blocks until output is available or the channel closes.
func (c *MockChannel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.outBuf.Len() == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.outBuf.Len() > 0 {
		return c.outBuf.Read(p)
	}
	return 0, ErrClosed
}

// Write captures input and, when scripted, feeds the line handler.
func (c *MockChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.input.Write(p)

	var emit []byte
	if c.echoInput {
		emit = append(emit, p...)
	}
	if c.lineHandler != nil {
		for _, b := range p {
			if b == '\r' || b == '\n' {
				line := c.lineBuf.String()
				c.lineBuf.Reset()
				if line != "" {
					emit = append(emit, c.lineHandler(line)...)
				}
			} else {
				c.lineBuf.WriteByte(b)
			}
		}
	}
	if len(emit) > 0 {
		c.outBuf.Write(emit)
		c.cond.Broadcast()
	}
	c.mu.Unlock()
	return len(p), nil
}

// Emit injects sandbox output for the caller to Read.
func (c *MockChannel) Emit(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.outBuf.Write(data)
	c.cond.Broadcast()
}

// Input returns everything written to the channel so far.
func (c *MockChannel) Input() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.input.Bytes()...)
}

func (c *MockChannel) Resize(cols, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.resizes = append(c.resizes, ResizeCall{Cols: cols, Rows: rows})
	return nil
}

// Resizes returns the recorded resize calls.
func (c *MockChannel) Resizes() []ResizeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ResizeCall(nil), c.resizes...)
}

func (c *MockChannel) Signal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.signals = append(c.signals, sig)
	return nil
}

// Signals returns the recorded signals.
func (c *MockChannel) Signals() []os.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]os.Signal(nil), c.signals...)
}

// Close marks the channel closed and wakes any blocked reader.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

// Closed reports whether Close was called.
func (c *MockChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
