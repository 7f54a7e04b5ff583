// Command contribsplit attributes repository contributions and distributes
// revenue received at split addresses to verified contributors.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := Execute(version); err != nil {
		os.Exit(1)
	}
}
