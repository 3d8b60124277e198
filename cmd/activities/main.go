// Command activities serves and manages a to-do list of activities.
//
// Usage:
//
//	activities serve --addr :8080
//	activities list
//	activities add "buy groceries"
//	activities toggle <id>
//	activities delete <id>
//
// Flags can also be set through FETCHZ_ADDR, FETCHZ_BASE_URL, FETCHZ_TIMEOUT
// and FETCHZ_RETRIES.
package main

import (
	"fmt"
	"os"

	"github.com/zoobzio/capitan"
)

func main() {
	err := newRootCmd().Execute()
	capitan.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
