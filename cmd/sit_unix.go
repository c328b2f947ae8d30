//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

var refreshSignals = []os.Signal{syscall.SIGCONT}
