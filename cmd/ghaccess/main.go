// Command ghaccess exercises the GitHub access layer from a shell: it resolves credentials and the
// repository context from the environment and performs REST calls through the retrying executor.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
