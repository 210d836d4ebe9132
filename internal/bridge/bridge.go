// Package bridge pumps bytes between one transport connection and one
// sandbox process channel.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sandterm/sandterm/internal/guard"
	"github.com/sandterm/sandterm/internal/infrastructure/logging"
	"github.com/sandterm/sandterm/internal/infrastructure/monitoring"
	"github.com/sandterm/sandterm/internal/sandbox"
)

// MaxFrameBytes bounds the size of a single outbound transport frame.
// Larger sandbox bursts are split into ordered chunks so one session's
// output cannot monopolize the connection.
const MaxFrameBytes = 1024

// Transport is one byte-stream connection to a client. The WebSocket
// adapter lives in the API layer; tests supply in-memory implementations.
type Transport interface {
	// ReadFrame returns the payload of the next inbound frame.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one outbound frame.
	WriteFrame(p []byte) error

	Close() error
}

// State is the bridge's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateClosed
)

// etx is the interrupt byte; the pseudo-terminal's line discipline turns it
// into SIGINT for the foreground process group.
const etx = 0x03

// initSequence establishes a known terminal state on every connection,
// including reconnections, before any client input is relayed.
const initSequence = "export TERM=xterm-256color COLUMNS=%d LINES=%d\n" +
	"export PS1='\\u@sandbox:\\w\\$ '\n" +
	"clear\n"

// Config carries a bridge's collaborators.
type Config struct {
	Transport Transport
	Channel   sandbox.Channel
	Cols      int
	Rows      int

	// OnActivity fires for every inbound transport frame.
	OnActivity func()

	Logger  *logging.Logger
	Metrics *monitoring.Metrics // optional
}

// Bridge relays bytes between a transport and a process channel until
// either side closes. Input runs through the command guard; output is
// chunked to MaxFrameBytes. One bridge serves one session at a time.
type Bridge struct {
	transport  Transport
	channel    sandbox.Channel
	guard      *guard.Guard
	cols, rows int
	onActivity func()
	log        *logging.Logger
	metrics    *monitoring.Metrics

	state atomic.Int32
}

// New creates a bridge in the Idle state.
func New(cfg Config) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	onActivity := cfg.OnActivity
	if onActivity == nil {
		onActivity = func() {}
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &Bridge{
		transport:  cfg.Transport,
		channel:    cfg.Channel,
		guard:      guard.New(),
		cols:       cols,
		rows:       rows,
		onActivity: onActivity,
		log:        log,
		metrics:    cfg.Metrics,
	}
}

// State returns the bridge's current lifecycle phase.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Run writes the terminal init sequence, then relays in both directions
// until either side closes. It blocks until both pump directions have
// retired.
func (b *Bridge) Run() {
	b.state.Store(int32(StateStreaming))
	defer b.state.Store(int32(StateClosed))

	fmt.Fprintf(b.channel, initSequence, b.cols, b.rows)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pumpOutput()
	}()

	b.pumpInput()
	wg.Wait()
}

// pumpOutput relays sandbox output to the transport in ordered chunks of at
// most MaxFrameBytes. A channel error or close notifies the client and
// closes the transport, which also unblocks pumpInput.
func (b *Bridge) pumpOutput() {
	buf := make([]byte, 32*1024)
	for {
		n, err := b.channel.Read(buf)
		if n > 0 {
			for off := 0; off < n; off += MaxFrameBytes {
				end := off + MaxFrameBytes
				if end > n {
					end = n
				}
				if werr := b.transport.WriteFrame(buf[off:end]); werr != nil {
					b.channel.Close()
					return
				}
			}
			if b.metrics != nil {
				b.metrics.BytesRelayed.WithLabelValues("output").Add(float64(n))
			}
		}
		if err != nil {
			b.transport.WriteFrame([]byte("\r\n[session] shell closed\r\n"))
			b.transport.Close()
			return
		}
	}
}

// pumpInput relays transport frames to the channel through the command
// guard. A transport error or close stops the relay and closes the process
// channel; the sandbox itself persists.
func (b *Bridge) pumpInput() {
	for {
		data, err := b.transport.ReadFrame()
		if err != nil {
			b.channel.Close()
			return
		}
		b.onActivity()
		if b.metrics != nil {
			b.metrics.BytesRelayed.WithLabelValues("input").Add(float64(len(data)))
		}

		for _, ev := range b.guard.Feed(data) {
			if len(ev.Forward) > 0 {
				if _, werr := b.channel.Write(ev.Forward); werr != nil {
					b.transport.WriteFrame([]byte("\r\n[session] shell closed\r\n"))
					b.transport.Close()
					return
				}
			}
			if ev.Interrupt {
				b.channel.Write([]byte{etx})
			}
			if ev.Blocked != "" {
				b.log.Info("command blocked", zap.String("command", ev.Blocked))
				if b.metrics != nil {
					b.metrics.CommandsBlocked.Inc()
				}
				warning := fmt.Sprintf("\r\n[blocked] %q is not permitted in this sandbox\r\n", ev.Blocked)
				b.transport.WriteFrame([]byte(warning))
			}
		}
	}
}
