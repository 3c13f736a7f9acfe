// Command camtrap runs the motion-triggered capture daemon and talks to a
// running instance over its HTTP API.
//
// `camtrap run` starts the daemon in the foreground. The status, recenter,
// capture, and logs commands query or steer a running daemon at the address
// given by --api or the configured api_bind. check, camera detect, notify
// test, and the config subcommands work without a daemon.
package main
