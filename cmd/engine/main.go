// Command engine runs the exposure engine: the identity-resolution and
// look-through pipeline described by the IPC contract in internal/server,
// plus a CLI for one-shot local runs.
package main

func main() {
	Execute()
}
