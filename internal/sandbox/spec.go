package sandbox

// Profile selects the capability posture granted to a sandbox.
type Profile string

const (
	// ProfileMinimal drops all privileged capabilities and adds back only
	// what an interactive shell needs. This is the default.
	ProfileMinimal Profile = "minimal"

	// ProfilePrivileged grants broad administrative capabilities and relaxes
	// confinement. Opt-in only; never selected implicitly.
	ProfilePrivileged Profile = "privileged"
)

// Spec is the security posture and provisioning recipe for one sandbox.
// The terminal service owns these values; the runtime merely enforces them.
type Spec struct {
	Image string

	// Resource ceilings.
	MemoryBytes     int64
	MemorySwapBytes int64
	CPUShares       int64
	PidsLimit       int64

	Profile    Profile
	Network    string // network mode; bridged and host-isolated by default
	AutoRemove bool   // remove filesystem state on stop

	Shell string

	// InitCommands run once after start, before any channel is opened.
	// Provisioning steps only (e.g. creating the constrained non-root user),
	// never per-keystroke logic.
	InitCommands []string
}

// DefaultSpec returns the minimal-profile posture: modest resource ceilings,
// isolated bridged networking, auto-removal on stop.
func DefaultSpec() Spec {
	return Spec{
		Image:           "debian:bookworm-slim",
		MemoryBytes:     256 << 20,
		MemorySwapBytes: 512 << 20,
		CPUShares:       512,
		PidsLimit:       128,
		Profile:         ProfileMinimal,
		Network:         "bridge",
		AutoRemove:      true,
		Shell:           "/bin/bash",
		InitCommands: []string{
			"useradd -m -s /bin/bash sandbox || true",
		},
	}
}

// CapDrop returns the capabilities removed from the sandbox.
func (p Profile) CapDrop() []string {
	if p == ProfilePrivileged {
		return nil
	}
	return []string{"ALL"}
}

// CapAdd returns the capabilities granted back after the drop. The minimal
// set covers file ownership changes the shell's own tooling performs; no
// raw network or administrative capabilities.
func (p Profile) CapAdd() []string {
	switch p {
	case ProfilePrivileged:
		return []string{"SYS_ADMIN", "NET_ADMIN", "SYS_PTRACE"}
	default:
		return []string{"CHOWN", "SETUID", "SETGID"}
	}
}

// Privileged reports whether the profile relaxes confinement.
func (p Profile) Privileged() bool {
	return p == ProfilePrivileged
}
