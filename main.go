// The main package for the existence executable.
package main

import (
	"github.com/JakeFAU/resource-existence/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
