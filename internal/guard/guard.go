// Package guard implements the pre-execution command filter for terminal
// sessions.
//
// The guard is a deterrent layer, not a security boundary: keystrokes are
// forwarded to the sandbox as they arrive so remote echo stays faithful, and
// only the line terminator of a denied command is withheld. Because the
// bytes have already streamed, a shell with unusual key bindings could act
// on them before the terminator check runs. That race is inherent to the
// remote-echo model; isolation comes from the sandbox itself.
package guard

import (
	"bytes"
	"strings"
)

// denyList holds command names refused at the start of a line. Matching is
// case-insensitive: a line is denied when it equals an entry exactly or
// starts with the entry followed by a space (catching subcommands).
var denyList = []string{
	// Host power control.
	"reboot", "shutdown", "poweroff", "halt", "init",
	// Filesystem and block-device surgery.
	"mkfs", "fdisk", "mount", "umount", "dd",
	// Container and orchestrator control.
	"docker", "podman", "kubectl", "crictl",
	// Kernel module manipulation.
	"insmod", "rmmod", "modprobe",
	// Network scanning.
	"nmap", "masscan", "tcpdump",
}

// fullScreenViewers are commands that take over the terminal and exit on a
// bare keystroke rather than a line.
var fullScreenViewers = map[string]bool{
	"top":  true,
	"htop": true,
}

const (
	ctrlC = 0x03
	del   = 0x7f
)

// Event is the guard's decision for one line terminator.
type Event struct {
	// Forward holds the bytes safe to pass to the sandbox, in order.
	Forward []byte

	// Interrupt requests an interrupt to the channel in place of the
	// withheld terminator (kills the pending line, or exits a viewer).
	Interrupt bool

	// Blocked names the denied command, for the client-facing warning.
	// Empty when nothing was denied.
	Blocked string
}

// Guard inspects one connection's input stream line by line. Not safe for
// concurrent use; each bridge owns one.
type Guard struct {
	line        bytes.Buffer
	lastCommand string
}

// New creates a guard with an empty inspection buffer.
func New() *Guard {
	return &Guard{}
}

// Feed consumes one inbound frame and returns the actions to apply, in
// order. Ordinary bytes come back in Forward untouched; each CR or LF closes
// out the buffered line and triggers a deny-list check.
func (g *Guard) Feed(p []byte) []Event {
	var events []Event
	var pending []byte

	for _, b := range p {
		switch b {
		case '\r', '\n':
			ev := g.endLine(b)
			ev.Forward = append(pending, ev.Forward...)
			pending = nil
			events = append(events, ev)
		case ctrlC:
			// The user killed the pending line themselves.
			g.line.Reset()
			pending = append(pending, b)
		case del:
			// Mirror the shell's line editing so the inspected text
			// matches what will run.
			g.backspace()
			pending = append(pending, b)
		default:
			g.line.WriteByte(b)
			pending = append(pending, b)
		}
	}

	if len(pending) > 0 {
		events = append(events, Event{Forward: pending})
	}
	return events
}

// endLine closes the buffered line at a terminator and decides its fate.
func (g *Guard) endLine(term byte) Event {
	line := strings.TrimSpace(g.line.String())
	g.line.Reset()

	// Exit keystroke for a full-screen viewer: the program is not reading
	// lines, so synthesize an interrupt instead of forwarding the literal
	// text. Narrow heuristic; it only recognizes the bare "q" immediately
	// after a known viewer launched.
	if fullScreenViewers[g.lastCommand] && line == "q" {
		g.lastCommand = ""
		return Event{Interrupt: true}
	}

	if name := match(line); name != "" {
		g.lastCommand = ""
		return Event{Interrupt: true, Blocked: name}
	}

	if fields := strings.Fields(line); len(fields) > 0 {
		g.lastCommand = strings.ToLower(fields[0])
	}
	return Event{Forward: []byte{term}}
}

func (g *Guard) backspace() {
	if g.line.Len() > 0 {
		g.line.Truncate(g.line.Len() - 1)
	}
}

// match returns the deny-list entry the line trips, or "".
func match(line string) string {
	lower := strings.ToLower(line)
	for _, name := range denyList {
		if lower == name || strings.HasPrefix(lower, name+" ") {
			return name
		}
	}
	return ""
}

// Denied reports whether a single line would be refused, without the
// streaming state a Guard carries.
func Denied(line string) bool {
	return match(strings.TrimSpace(line)) != ""
}
