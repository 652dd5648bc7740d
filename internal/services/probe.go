package services

import (
	"context"
	"fmt"

	"homeport/internal/hostexec"
)

// GuestCommand is the prefix that runs a command inside the guest, e.g.
// ["wsl", "-d", "Ubuntu", "--"]. An empty prefix runs commands directly.
type GuestCommand []string

// NewGuestCommand builds the prefix for distro. wslCommand may carry extra
// arguments ("wsl.exe --user root").
func NewGuestCommand(wslCommand, distro string) (GuestCommand, error) {
	if distro == "" {
		return nil, nil
	}
	words, err := hostexec.Split(wslCommand)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		words = []string{"wsl"}
	}
	return GuestCommand(append(words, "-d", distro, "--")), nil
}

// Run executes args inside the guest.
func (g GuestCommand) Run(ctx context.Context, runner hostexec.Runner, args ...string) (string, error) {
	full := append(append([]string{}, g...), args...)
	if len(full) == 0 {
		return "", fmt.Errorf("empty command")
	}
	return runner.Run(ctx, full[0], full[1:]...)
}

// WSLProbe asks the guest for its addresses with `hostname -I`.
type WSLProbe struct {
	Runner hostexec.Runner
	Guest  GuestCommand
}

func (p *WSLProbe) ProbeAddresses(ctx context.Context) (string, error) {
	return p.Guest.Run(ctx, p.Runner, "hostname", "-I")
}
