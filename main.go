// The main package for the scrapectl executable.
package main

import (
	"github.com/JakeFAU/scrapectl/cmd"
)

func main() {
	cmd.Execute()
}
