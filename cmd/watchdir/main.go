// Command watchdir recursively watches a directory tree for filesystem
// changes and prints them as they happen.
package main

import "os"

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
