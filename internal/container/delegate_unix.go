//go:build !windows

package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"dappled/internal/logger"
)

// Delegate runs udocker in its own process group. When standard input is the
// terminal this process controls, that group becomes the terminal's foreground
// group while it runs, so the containerized command can read passwords and
// receives Ctrl-C itself. Interrupts delivered to this process still ask
// before stopping the command, and a confirmed quit or SIGTERM sends SIGTERM
// to the whole group.
func (u *Udocker) Delegate(ctx context.Context, env []string, args ...string) (int, error) {
	cmd := exec.Command(u.Binary, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = u.Stdin, u.Stdout, u.Stderr
	tty := u.foregroundTTY()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if tty >= 0 {
		cmd.SysProcAttr.Foreground = true
		cmd.SysProcAttr.Ctty = tty
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	logger.Debug("[DEBUG] Running: %s %s\n", u.Binary, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to run: %s %s: %w", u.Binary, strings.Join(args, " "), err)
	}
	pgid := cmd.Process.Pid
	confirm := u.confirmQuit
	if tty >= 0 {
		defer setForeground(tty, unix.Getpgrp())
		// The question is asked on the terminal, so take it back meanwhile.
		confirm = func(interrupts <-chan os.Signal) bool {
			setForeground(tty, unix.Getpgrp())
			if u.confirmQuit(interrupts) {
				return true
			}
			setForeground(tty, pgid)
			return false
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	terminate := func() {
		if err := unix.Kill(-pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			logger.Warn("[WARN] Failed to terminate process group %d: %v\n", pgid, err)
		}
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			terminate()
		case <-stop:
		}
	}()

	res := supervise(done, signals, os.Interrupt, confirm, terminate)
	var exitErr *exec.ExitError
	if res.err != nil && !errors.As(res.err, &exitErr) {
		return -1, res.err
	}
	return exitCode(cmd.ProcessState), nil
}

// foregroundTTY returns the descriptor of Stdin when it is the terminal whose
// foreground group this process belongs to, and -1 otherwise.
func (u *Udocker) foregroundTTY() int {
	if u.Stdin == nil {
		return -1
	}
	fd := int(u.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return -1
	}
	fg, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil || fg != unix.Getpgrp() {
		return -1
	}
	return fd
}

// setForeground makes pgrp the foreground process group of tty. A background
// caller would be stopped by SIGTTOU, so it is ignored for the call.
func setForeground(tty, pgrp int) {
	signal.Ignore(syscall.SIGTTOU)
	defer signal.Reset(syscall.SIGTTOU)
	if err := unix.IoctlSetPointerInt(tty, unix.TIOCSPGRP, pgrp); err != nil {
		logger.Warn("[WARN] Failed to hand the terminal to process group %d: %v\n", pgrp, err)
	}
}

// exitCode maps a signal death to the shell convention 128+signal.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
