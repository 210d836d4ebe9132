// Package session owns the lifecycle of sandbox-backed terminal sessions.
//
// The Registry is the single authoritative map from session ID to session
// record; all mutation goes through it. Each session exclusively owns one
// sandbox handle, released exactly once on termination, and carries at most
// one live process channel at a time. The Reaper sweeps the registry on a
// fixed interval and terminates sessions idle past the configured threshold
// through the same path as explicit deletion.
//
// Termination is fail-open: the registry entry is removed even when sandbox
// teardown fails, trading a possible orphaned sandbox for a registry that
// never leaks. Teardown failures are logged, not retried.
package session
