// The main package for the sitemapcrawler executable.
package main

import (
	"github.com/JakeFAU/sitemap-coverage-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
