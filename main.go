// The main package for the manualfinder executable.
package main

import (
	"github.com/ati-tools/manualfinder/cmd"
)

func main() {
	cmd.Execute()
}
