//go:build windows

package env

import (
	"errors"
	"os"
	"os/exec"
)

// execFunc emulates exec on Windows: run the child attached to the console and
// exit with its status.
var execFunc = func(path string, argv []string, envv []string) error {
	cmd := exec.Command(path, argv[1:]...)
	cmd.Env = envv
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	os.Exit(cmd.ProcessState.ExitCode())
	return nil
}
