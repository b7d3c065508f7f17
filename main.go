// Command serpforge searches the web and extracts analyzed content from the results.
package main

import "github.com/vishalm/serp-forge/cmd"

func main() {
	cmd.Execute()
}
