// The main package for the boardkeeper executable.
package main

import (
	"github.com/boardkeeper/boardkeeper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
