// The main package for the scqc executable.
package main

import (
	"github.com/JakeFAU/scqc/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
