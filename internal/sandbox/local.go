package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// LocalRuntime backs sandboxes with plain host processes on a
// pseudo-terminal. The Spec's resource ceilings and capability policy are
// not enforced here; this runtime exists to run the full relay pipeline
// without a container engine.
type LocalRuntime struct {
	// WorkDir is the working directory for spawned shells.
	// Defaults to the user's home directory.
	WorkDir string
}

// NewLocalRuntime creates a process-backed runtime.
func NewLocalRuntime() *LocalRuntime {
	return &LocalRuntime{}
}

// Create returns a handle for a lazily started shell. No process exists
// until a channel is opened.
func (r *LocalRuntime) Create(ctx context.Context, spec Spec) (Handle, error) {
	return &localHandle{
		id:      "local-" + uuid.NewString(),
		spec:    spec,
		workDir: r.WorkDir,
	}, nil
}

type localHandle struct {
	id      string
	spec    Spec
	workDir string

	mu      sync.Mutex
	channel *localChannel
	stopped bool
}

func (h *localHandle) ID() string { return h.id }

func (h *localHandle) OpenChannel(ctx context.Context, cfg ChannelConfig) (Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, ErrClosed
	}

	shell := cfg.Shell
	if shell == "" {
		shell = h.spec.Shell
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	term := cfg.Term
	if term == "" {
		term = "xterm-256color"
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Dir = h.workDir
	if cmd.Dir == "" {
		cmd.Dir = os.Getenv("HOME")
	}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TERM=%s", term),
		fmt.Sprintf("COLUMNS=%d", cols),
		fmt.Sprintf("LINES=%d", rows),
	)
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	ch := &localChannel{cmd: cmd, ptmx: ptmx}

	// Reap the process when it exits so a shell-initiated exit does not
	// leave a zombie behind.
	go func() {
		cmd.Wait()
		ch.Close()
	}()

	h.channel = ch
	return ch, nil
}

func (h *localHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	if h.channel != nil {
		h.channel.Close()
		h.channel = nil
	}
	return nil
}

// Remove is a no-op: a process sandbox leaves no filesystem state behind.
func (h *localHandle) Remove(ctx context.Context) error {
	return nil
}

type localChannel struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	closed bool
}

func (c *localChannel) Read(p []byte) (int, error)  { return c.ptmx.Read(p) }
func (c *localChannel) Write(p []byte) (int, error) { return c.ptmx.Write(p) }

func (c *localChannel) Resize(cols, rows int) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
}

func (c *localChannel) Signal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.cmd.Process == nil {
		return ErrClosed
	}
	return c.cmd.Process.Signal(sig)
}

func (c *localChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	return c.ptmx.Close()
}
