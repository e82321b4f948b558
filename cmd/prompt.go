package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"dappled/internal/config"
	"dappled/internal/remote"
)

// promptCredentials asks for the service account. The password is not echoed
// when in is a terminal; otherwise both answers are read as lines from in.
func promptCredentials(in *os.File, out io.Writer) (remote.Credentials, error) {
	reader := bufio.NewReader(in)

	fmt.Fprint(out, "Username: ")
	username, err := readLine(reader)
	if err != nil {
		return remote.Credentials{}, err
	}

	fmt.Fprint(out, "Password: ")
	var password string
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return remote.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = string(b)
	} else if password, err = readLine(reader); err != nil {
		return remote.Credentials{}, err
	}

	if username == "" {
		return remote.Credentials{}, config.Fail("a username is required")
	}
	return remote.Credentials{Username: username, Password: password}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
