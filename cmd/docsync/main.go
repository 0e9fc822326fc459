// Command docsync reads, writes and maintains per-owner settings documents
// kept in a blob store, and can serve them over HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
