package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"homeport/internal/gate"
	"homeport/internal/hostexec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, runner hostexec.Runner, args ...string) (string, error) {
	t.Helper()
	a := &app{runner: runner}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func guestRunner(addresses string) *hostexec.FakeRunner {
	return &hostexec.FakeRunner{Handler: func(command string) (string, error) {
		switch {
		case strings.HasSuffix(command, "hostname -I"):
			return addresses, nil
		case strings.HasSuffix(command, "status=running"):
			return "homeassistant\ngrafana\ninfluxdb\n", nil
		}
		return "", nil
	}}
}

func TestForwardDryRun(t *testing.T) {
	runner := guestRunner("172.20.5.4 fe80::1\n")
	out, err := execute(t, runner, "forward", "--dry-run", "--db", "", "--ports", "8123,3000")
	require.NoError(t, err)

	assert.Equal(t, "Resolved address: 172.20.5.4\n"+
		"Forwarded 0.0.0.0:8123 -> 172.20.5.4:8123\n"+
		"Forwarded 0.0.0.0:3000 -> 172.20.5.4:3000\n", out)

	calls := runner.Calls()
	assert.Contains(t, calls, "wsl -d Ubuntu -- docker compose --project-directory /opt/homeassistant up -d")
	for _, c := range calls {
		assert.NotContains(t, c, "netsh", "dry run must not touch the host")
	}
}

func TestForwardSkipComposeUp(t *testing.T) {
	runner := guestRunner("172.20.5.4\n")
	_, err := execute(t, runner, "forward", "--dry-run", "--db", "", "--skip-compose-up")
	require.NoError(t, err)
	for _, c := range runner.Calls() {
		assert.NotContains(t, c, "up -d")
	}
}

func TestForwardTimeoutExitCode(t *testing.T) {
	runner := guestRunner("   \n")
	out, err := execute(t, runner, "forward", "--dry-run", "--db", "", "--wait-seconds", "1")
	require.Error(t, err)
	assert.Empty(t, out)

	var timeoutErr *gate.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 2, exitCode(err))
}

func TestForwardRejectsBadPorts(t *testing.T) {
	_, err := execute(t, guestRunner("172.20.5.4"), "forward", "--dry-run", "--db", "", "--ports", "8123,70000")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestSyncNetsh(t *testing.T) {
	runner := &hostexec.FakeRunner{}
	out, err := execute(t, runner, "sync", "--db", "", "--target", "10.0.0.5", "--ports", "8086")
	require.NoError(t, err)
	assert.Contains(t, out, "Forwarded 0.0.0.0:8086 -> 10.0.0.5:8086")

	calls := runner.Calls()
	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.True(t, strings.HasPrefix(c, "netsh "), c)
	}
}

func TestSyncRequiresTarget(t *testing.T) {
	_, err := execute(t, &hostexec.FakeRunner{}, "sync", "--dry-run")
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	wrapped := fmt.Errorf("forward: %w", &gate.TimeoutError{Phase: "guest address"})
	assert.Equal(t, 2, exitCode(wrapped))
	assert.Equal(t, 1, exitCode(errors.New("netsh failed")))
}
