package sandbox

import (
	"context"
	"errors"
	"io"
	"os"
)

var (
	// ErrClosed indicates an operation on a stopped sandbox or closed channel.
	ErrClosed = errors.New("sandbox is closed")
)

// Runtime creates isolated execution environments.
type Runtime interface {
	// Create provisions and starts a sandbox with the given spec.
	// The returned handle is exclusively owned by the caller.
	Create(ctx context.Context, spec Spec) (Handle, error)
}

// Handle is a live sandbox. At most one interactive channel may be open
// at a time; opening a new one while another is live is the caller's
// responsibility to serialize.
type Handle interface {
	// ID returns the runtime-assigned sandbox identifier.
	ID() string

	// OpenChannel attaches an interactive process channel bound to a
	// pseudo-terminal inside the sandbox.
	OpenChannel(ctx context.Context, cfg ChannelConfig) (Channel, error)

	// Stop halts the sandbox. With Spec.AutoRemove set the runtime also
	// removes it; Remove is then a no-op.
	Stop(ctx context.Context) error

	// Remove deletes the sandbox and its filesystem state.
	Remove(ctx context.Context) error
}

// Channel is an interactive I/O attachment point: stdin/stdout/stderr of a
// shell bound to a pseudo-terminal.
type Channel interface {
	io.ReadWriteCloser

	// Resize changes the pseudo-terminal window size.
	Resize(cols, rows int) error

	// Signal delivers a signal to the channel's process group.
	Signal(sig os.Signal) error
}

// ChannelConfig describes the process channel to open.
type ChannelConfig struct {
	Shell string // defaults to the spec's shell
	Term  string // TERM value, defaults to xterm-256color
	Cols  int
	Rows  int
	Env   map[string]string
}
