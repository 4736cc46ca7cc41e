// Command pomoctl controls a running pomodorod.
//
// Usage:
//
//	pomoctl state
//	pomoctl toggle | skip | reset | stop
//	pomoctl settings --focus 50 --short-break 10
//	pomoctl watch
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
