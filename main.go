// ./main.go
package main

import (
	"github.com/xkilldash9x/prerender/cmd"
)

// main is the entry point for the prerender CLI.
func main() {
	cmd.Execute()
}
