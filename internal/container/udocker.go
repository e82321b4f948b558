package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"

	"dappled/internal/logger"
)

// Udocker is the Runtime backed by the udocker command line tool.
type Udocker struct {
	Binary string
	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer
}

// NewUdocker returns a runtime that runs binary attached to the process's standard streams.
func NewUdocker(binary string) *Udocker {
	return &Udocker{Binary: binary, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (u *Udocker) Output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, u.Binary, args...)
	cmd.Stderr = u.Stderr
	logger.Debug("[DEBUG] Running: %s %s\n", u.Binary, strings.Join(args, " "))
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to run: %s %s: %w", u.Binary, strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (u *Udocker) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, u.Binary, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = u.Stdin, u.Stdout, u.Stderr
	logger.Debug("[DEBUG] Running: %s %s\n", u.Binary, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run: %s %s: %w", u.Binary, strings.Join(args, " "), err)
	}
	return nil
}

// confirmQuit asks whether to stop the delegated command. Another interrupt
// while the question is pending counts as yes. Without a terminal there is
// nobody to ask, so the answer is yes.
func (u *Udocker) confirmQuit(interrupts <-chan os.Signal) bool {
	if u.Stdin == nil || !term.IsTerminal(int(u.Stdin.Fd())) {
		return true
	}
	fmt.Fprint(u.Stdout, "\nreally quit? [y/N] ")

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(u.Stdin).ReadString('\n')
		answer <- line
	}()
	select {
	case line := <-answer:
		return isYes(line)
	case <-interrupts:
		fmt.Fprintln(u.Stdout)
		return true
	}
}

func isYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// superviseResult is how a supervised child ended.
type superviseResult struct {
	err        error
	terminated bool
}

// supervise waits for done while handling signals: a terminate request stops
// the child at once, an interrupt stops it only when confirm agrees.
func supervise(done <-chan error, signals <-chan os.Signal, interrupt os.Signal, confirm func(<-chan os.Signal) bool, terminate func()) superviseResult {
	terminated := false
	for {
		select {
		case err := <-done:
			return superviseResult{err: err, terminated: terminated}
		case sig := <-signals:
			if terminated {
				continue
			}
			if sig == interrupt && !confirm(signals) {
				logger.Debug("[DEBUG] Continuing delegated command\n")
				continue
			}
			logger.Debug("[DEBUG] Terminating delegated command\n")
			terminate()
			terminated = true
		}
	}
}
