package services

import (
	"context"
	"fmt"
	"strings"

	"homeport/internal/hostexec"

	"github.com/sirupsen/logrus"
)

// ComposeService wraps the compose CLI for one project directory.
type ComposeService struct {
	Runner     hostexec.Runner
	Guest      GuestCommand
	Command    []string
	ProjectDir string
}

func NewComposeService(runner hostexec.Runner, guest GuestCommand, command, projectDir string) (*ComposeService, error) {
	words, err := hostexec.Split(command)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("compose command is empty")
	}
	return &ComposeService{Runner: runner, Guest: guest, Command: words, ProjectDir: projectDir}, nil
}

func (s *ComposeService) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{}, s.Command...)
	if s.ProjectDir != "" {
		full = append(full, "--project-directory", s.ProjectDir)
	}
	full = append(full, args...)
	return s.Guest.Run(ctx, s.Runner, full...)
}

// Up starts the declared services in the background.
func (s *ComposeService) Up(ctx context.Context) error {
	logrus.Infof("Bringing up compose project in %s", s.ProjectDir)
	if _, err := s.run(ctx, "up", "-d"); err != nil {
		return fmt.Errorf("compose up: %w", err)
	}
	return nil
}

// RunningServices lists services whose containers are running.
func (s *ComposeService) RunningServices(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, "ps", "--services", "--filter", "status=running")
	if err != nil {
		return nil, fmt.Errorf("compose ps: %w", err)
	}
	return parseServiceNames(out), nil
}

func parseServiceNames(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}
