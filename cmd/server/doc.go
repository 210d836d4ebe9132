// Command server runs the sandbox terminal service: a session control API
// plus a WebSocket bridge that relays a browser terminal to a short-lived
// resource-constrained sandbox shell.
//
// Configuration comes from the environment; see internal/infrastructure/config.
package main
