//go:build windows

package cmd

import "os"

// Windows has no job-control signals; the countdown catches up on the next
// frame.
var refreshSignals []os.Signal
