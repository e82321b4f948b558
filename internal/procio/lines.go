// Package procio consumes the output of child processes incrementally.
//
// A package-manager install can run for minutes, so its output is never
// collected with CombinedOutput. Instead the child's stdout and stderr share
// one pipe and the parent yields each line as soon as its terminator arrives.
// Conda redraws progress bars with a bare carriage return, so "\r" counts as a
// line terminator just like "\n" and "\r\n".
package procio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Lines yields the lines of r as they are terminated by "\n", "\r\n" or "\r".
// A trailing segment without a terminator is yielded once r reports EOF.
// Read errors other than EOF end the sequence silently; callers that care use Stream.
func Lines(r io.Reader) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = scanLines(r, yield)
	}
}

// scanLines reads r one byte at a time through a buffer. A "\r" is yielded
// immediately (progress lines end with it and the next byte may be seconds
// away); a "\n" directly following it is swallowed so "\r\n" counts once.
func scanLines(r io.Reader, yield func(string) bool) error {
	br := bufio.NewReader(r)
	var line strings.Builder
	afterCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			if line.Len() > 0 {
				yield(line.String())
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch b {
		case '\n':
			if afterCR {
				afterCR = false
				continue
			}
			if !yield(line.String()) {
				return nil
			}
			line.Reset()
		case '\r':
			afterCR = true
			if !yield(line.String()) {
				return nil
			}
			line.Reset()
		default:
			afterCR = false
			line.WriteByte(b)
		}
	}
}

// Stream is a started child process whose combined stdout and stderr are read line by line.
type Stream struct {
	cmd    *exec.Cmd
	reader *os.File

	waitOnce sync.Once
	waitErr  error
	readErr  error
}

// Start launches cmd with stdout and stderr joined onto a single pipe.
// cmd.Stdout and cmd.Stderr must be unset.
func Start(cmd *exec.Cmd) (*Stream, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("failed to run: %s: %w", strings.Join(cmd.Args, " "), err)
	}
	// The child holds its own copy of the write end; closing ours lets the
	// reader see EOF as soon as the child (and its children) exit.
	_ = pw.Close()

	return &Stream{cmd: cmd, reader: pr}, nil
}

// Lines yields the child's output lines. The sequence ends when the pipe is
// exhausted, after which the child is reaped. Breaking out of the loop early
// closes the pipe and still reaps the child. Lines can be ranged over once.
func (s *Stream) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		defer s.Wait()
		defer s.reader.Close()
		s.readErr = scanLines(s.reader, yield)
	}
}

// Wait waits for the child to exit and returns its exit error, if any.
// It is safe to call more than once.
func (s *Stream) Wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	if s.waitErr != nil {
		return s.waitErr
	}
	return s.readErr
}

// ExitCode reports the child's exit status, or -1 if it has not exited or was killed by a signal.
func (s *Stream) ExitCode() int {
	if s.cmd.ProcessState == nil {
		return -1
	}
	return s.cmd.ProcessState.ExitCode()
}

// Pid returns the process id of the child.
func (s *Stream) Pid() int {
	return s.cmd.Process.Pid
}
