// cmd/vitalink/main.go
package main

import (
	cmd "github.com/vitalink/vitalink/internal/cli"
)

// main starts the vitalink CLI application by delegating to the cobra root
// command. It does not take any arguments and does not return a value.
func main() {
	cmd.Execute()
}
