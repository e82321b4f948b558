//go:build !windows

package env

import "golang.org/x/sys/unix"

// execFunc is the process-image replacement; tests swap it out.
var execFunc = unix.Exec
