// Package sandbox defines the execution-environment capability the terminal
// service runs on top of.
//
// The service owns the security posture (resource ceilings, capability
// policy, networking) but not the isolation mechanism itself: Runtime is an
// interface, and deployments plug in whatever backs it. Two implementations
// ship here:
//
//   - LocalRuntime: host processes on a pseudo-terminal via creack/pty.
//     No isolation beyond the OS user; intended for development and for
//     exercising the full relay pipeline in tests.
//   - MockRuntime: fully scripted, for unit tests of the session and
//     bridge layers.
//
// A container-backed runtime is a deployment concern behind the same
// interface.
package sandbox
