package procio

import (
	"bytes"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func TestWatch_AccumulatesAndRedraws(t *testing.T) {
	input := []string{"Downloading...", "[ 10%]", "[ 50%]", "[100%]", "Extracting packages ..."}

	var out bytes.Buffer
	seen := Watch(slices.Values(input), &out)

	if !reflect.DeepEqual(seen, input) {
		t.Fatalf("accumulated lines: want %#v, got %#v", input, seen)
	}

	want := "\r[ 10%]" + "\r[ 50%]" + "\r[100%]\n" + "\n" + "Extracting packages ...\n"
	if out.String() != want {
		t.Fatalf("console output:\nwant %q\ngot  %q", want, out.String())
	}
}

func TestWatch_PhaseLines(t *testing.T) {
	var out bytes.Buffer
	Watch(slices.Values([]string{"Fetching packages ...", "numpy-1.11.1 100%", "Linking packages ..."}), &out)

	want := "Fetching packages ...\nLinking packages ...\n"
	if out.String() != want {
		t.Fatalf("want %q, got %q", want, out.String())
	}
}

func TestIsProgress(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"[ 10%]", true},
		{"[100%]", true},
		{"[      COMPLETE      ]|##################| 100%", true},
		{"numpy-1.11.1 |  6.1 MB | 45% |#####     |", true},
		{"Downloading...", false},
		{"[done]", false},
		{"Fetching packages ...", false},
	}
	for _, tt := range tests {
		if got := IsProgress(tt.line); got != tt.want {
			t.Errorf("IsProgress(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestWatch_PipeBarCompletes(t *testing.T) {
	var out bytes.Buffer
	Watch(slices.Values([]string{"pkg | 1 MB | 100% |##########|"}), &out)
	if !strings.HasSuffix(out.String(), "\n") {
		t.Fatalf("completed pipe bar should end with newline, got %q", out.String())
	}
}

func TestTail(t *testing.T) {
	lines := []string{"a", "", "b", "c", " "}
	if got := Tail(lines, 2); got != "b\nc" {
		t.Fatalf("want %q, got %q", "b\nc", got)
	}
	if got := Tail(nil, 3); got != "" {
		t.Fatalf("want empty tail, got %q", got)
	}
}
