// The main package for the apec-observer executable.
package main

import (
	"github.com/AbdallahZerfaoui/apec-observer/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
