package hostexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrCommandNotFound is returned when the executable does not exist on the host.
var ErrCommandNotFound = errors.New("command not found")

// Runner executes a host command and returns its decoded standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExitError reports a command that ran but exited unsuccessfully.
type ExitError struct {
	Command string
	Code    int
	Output  string
	Err     error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with code %d: %v", e.Command, e.Code, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.Code, out)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	command := strings.Join(append([]string{name}, args...), " ")
	logrus.Debugf("Running %s", command)

	err := cmd.Run()
	out := Decode(stdout.Bytes())
	if err == nil {
		return out, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", name, ErrCommandNotFound)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// netsh reports failures on stdout, wsl.exe on stderr.
		combined := strings.TrimSpace(out + "\n" + Decode(stderr.Bytes()))
		return out, &ExitError{Command: command, Code: exitErr.ExitCode(), Output: combined, Err: err}
	}
	return out, fmt.Errorf("running %s: %w", command, err)
}

// Decode returns b as a string, converting UTF-16LE output (as written by
// wsl.exe itself) to UTF-8.
func Decode(b []byte) string {
	if !looksUTF16(b) {
		return string(b)
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	out, _, err := transform.Bytes(decoder, b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func looksUTF16(b []byte) bool {
	if len(b) >= 2 && b[0] == 0xff && b[1] == 0xfe {
		return true
	}
	if len(b) < 2 || len(b)%2 != 0 {
		return false
	}
	// ASCII text encoded as UTF-16LE has a zero in every odd byte.
	zeros := 0
	for i := 1; i < len(b); i += 2 {
		if b[i] == 0 {
			zeros++
		}
	}
	return zeros*2 >= len(b)/2
}

// Split parses a command line such as "wsl -d Ubuntu --" into its words.
func Split(line string) ([]string, error) {
	words, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", line, err)
	}
	return words, nil
}
