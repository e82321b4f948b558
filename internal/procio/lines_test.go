package procio

import (
	"os/exec"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"testing"
)

func TestLines_Terminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newline", "a\nb\n", []string{"a", "b"}},
		{"crlf counts once", "a\r\nb\r\n", []string{"a", "b"}},
		{"bare carriage return", "[ 10%]\r[ 50%]\r[100%]\n", []string{"[ 10%]", "[ 50%]", "[100%]"}},
		{"partial final line", "first\nno terminator", []string{"first", "no terminator"}},
		{"blank lines kept", "a\n\nb\n", []string{"a", "", "b"}},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(Lines(strings.NewReader(tt.input)))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Lines(%q): want %#v, got %#v", tt.input, tt.want, got)
			}
		})
	}
}

func TestLines_EarlyBreak(t *testing.T) {
	var got []string
	for line := range Lines(strings.NewReader("1\n2\n3\n")) {
		got = append(got, line)
		if line == "2" {
			break
		}
	}
	if !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("want [1 2], got %v", got)
	}
}

func TestStream_CombinedOutputAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}

	s, err := Start(exec.Command("sh", "-c", `printf 'out\n'; printf 'err\n' >&2; printf 'tail'; exit 3`))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := slices.Collect(s.Lines())
	if !reflect.DeepEqual(got, []string{"out", "err", "tail"}) {
		t.Fatalf("want [out err tail], got %#v", got)
	}
	if err := s.Wait(); err == nil {
		t.Fatal("expected exit error from Wait")
	}
	if code := s.ExitCode(); code != 3 {
		t.Fatalf("want exit code 3, got %d", code)
	}
}

func TestStart_MissingExecutable(t *testing.T) {
	_, err := Start(exec.Command("dappled-no-such-binary-xyz"))
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !strings.Contains(err.Error(), "failed to run: dappled-no-such-binary-xyz") {
		t.Fatalf("error should carry the command line, got %v", err)
	}
}
