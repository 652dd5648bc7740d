package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"homeport/internal/forward"
	"homeport/internal/gate"
	"homeport/internal/hostexec"
	"homeport/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGuestCommand(t *testing.T) {
	guest, err := NewGuestCommand("wsl.exe --user root", "Ubuntu")
	require.NoError(t, err)
	assert.Equal(t, GuestCommand{"wsl.exe", "--user", "root", "-d", "Ubuntu", "--"}, guest)

	guest, err = NewGuestCommand("", "Debian")
	require.NoError(t, err)
	assert.Equal(t, GuestCommand{"wsl", "-d", "Debian", "--"}, guest)

	guest, err = NewGuestCommand("wsl", "")
	require.NoError(t, err)
	assert.Empty(t, guest)
}

func TestWSLProbe(t *testing.T) {
	runner := &hostexec.FakeRunner{Handler: func(string) (string, error) {
		return "172.20.5.4 fe80::1 \n", nil
	}}
	guest, err := NewGuestCommand("wsl", "Ubuntu")
	require.NoError(t, err)

	out, err := (&WSLProbe{Runner: runner, Guest: guest}).ProbeAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "172.20.5.4 fe80::1 \n", out)
	assert.Equal(t, []string{"wsl -d Ubuntu -- hostname -I"}, runner.Calls())
}

func TestComposeService(t *testing.T) {
	runner := &hostexec.FakeRunner{Handler: func(command string) (string, error) {
		if strings.HasSuffix(command, "status=running") {
			return "homeassistant\n\ngrafana\r\ninfluxdb\n", nil
		}
		return "", nil
	}}
	guest, err := NewGuestCommand("wsl", "Ubuntu")
	require.NoError(t, err)
	compose, err := NewComposeService(runner, guest, "docker compose", "/opt/homeassistant")
	require.NoError(t, err)

	require.NoError(t, compose.Up(context.Background()))
	names, err := compose.RunningServices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"homeassistant", "grafana", "influxdb"}, names)
	assert.Equal(t, []string{
		"wsl -d Ubuntu -- docker compose --project-directory /opt/homeassistant up -d",
		"wsl -d Ubuntu -- docker compose --project-directory /opt/homeassistant ps --services --filter status=running",
	}, runner.Calls())
}

func TestComposeServiceErrors(t *testing.T) {
	_, err := NewComposeService(nil, nil, "  ", "/x")
	assert.Error(t, err)

	runner := &hostexec.FakeRunner{Handler: func(command string) (string, error) {
		return "", fmt.Errorf("docker-compose: %w", hostexec.ErrCommandNotFound)
	}}
	compose, err := NewComposeService(runner, nil, "docker-compose", "")
	require.NoError(t, err)
	_, err = compose.RunningServices(context.Background())
	assert.ErrorIs(t, err, hostexec.ErrCommandNotFound)
	assert.Equal(t, []string{"docker-compose ps --services --filter status=running"}, runner.Calls())
}

type recordingJournal struct {
	rows []models.PortForward
	err  error
}

func (j *recordingJournal) RecordForwards(rows []models.PortForward) error {
	j.rows = append(j.rows, rows...)
	return j.err
}

// newDeployment fakes the guest side: the address probe and compose CLI go
// through one scripted runner.
func newDeployment(t *testing.T, handler func(string) (string, error)) (*Deployment, *forward.Memory, *recordingJournal, *hostexec.FakeRunner) {
	t.Helper()
	runner := &hostexec.FakeRunner{Handler: handler}
	guest, err := NewGuestCommand("wsl", "Ubuntu")
	require.NoError(t, err)
	compose, err := NewComposeService(runner, guest, "docker compose", "/opt/homeassistant")
	require.NoError(t, err)

	g := gate.New(&WSLProbe{Runner: runner, Guest: guest}, compose)
	g.AddressInterval = 10 * time.Millisecond
	g.QuorumInterval = 10 * time.Millisecond

	host := forward.NewMemory()
	journal := &recordingJournal{}
	return &Deployment{
		Gate:        g,
		Compose:     compose,
		Forwarder:   forward.New(host, host),
		Journal:     journal,
		Backend:     forward.BackendMemory,
		Ports:       []int{8123, 3000, 8086},
		MinServices: 3,
		Wait:        time.Second,
	}, host, journal, runner
}

func TestDeploymentEndToEnd(t *testing.T) {
	d, host, journal, _ := newDeployment(t, func(command string) (string, error) {
		switch {
		case strings.HasSuffix(command, "hostname -I"):
			return "172.20.5.4 fe80::1\n", nil
		case strings.HasSuffix(command, "status=running"):
			return "homeassistant\ngrafana\ninfluxdb\n", nil
		}
		return "", nil
	})

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "172.20.5.4", res.Address)
	require.Len(t, res.Mappings, 3)
	assert.Equal(t, map[string]string{
		"0.0.0.0:8123": "172.20.5.4:8123",
		"0.0.0.0:3000": "172.20.5.4:3000",
		"0.0.0.0:8086": "172.20.5.4:8086",
	}, host.Forwards())
	assert.Equal(t, map[string]int{"WSL Port 8123": 8123, "WSL Port 3000": 3000, "WSL Port 8086": 8086}, host.Rules())

	require.Len(t, journal.rows, 3)
	for _, row := range journal.rows {
		assert.Equal(t, "172.20.5.4", row.TargetNode)
		assert.Equal(t, "memory", row.Backend)
	}
}

func TestDeploymentWaitsForQuorumAfterComposeUp(t *testing.T) {
	polls := 0
	d, host, _, runner := newDeployment(t, func(command string) (string, error) {
		switch {
		case strings.HasSuffix(command, "hostname -I"):
			return "10.0.0.5", nil
		case strings.HasSuffix(command, "status=running"):
			polls++
			if polls < 3 {
				return "homeassistant\n", nil
			}
			return "homeassistant\ngrafana\ninfluxdb\n", nil
		}
		return "", nil
	})

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Len(t, host.Forwards(), 3)

	calls := runner.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.True(t, strings.HasSuffix(calls[0], "hostname -I"))
	assert.True(t, strings.HasSuffix(calls[1], "up -d"))
}

func TestDeploymentEmptyProbeChangesNothing(t *testing.T) {
	d, host, journal, runner := newDeployment(t, func(command string) (string, error) {
		if strings.HasSuffix(command, "status=running") {
			return "a\nb\nc\n", nil
		}
		return "", nil
	})
	d.Wait = 50 * time.Millisecond

	_, err := d.Run(context.Background())

	var timeoutErr *gate.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Zero(t, host.Changes())
	assert.Empty(t, journal.rows)
	for _, c := range runner.Calls() {
		assert.True(t, strings.HasSuffix(c, "hostname -I"), "unexpected command %q", c)
	}
}

func TestDeploymentQuorumTimeoutChangesNothing(t *testing.T) {
	d, host, _, _ := newDeployment(t, func(command string) (string, error) {
		switch {
		case strings.HasSuffix(command, "hostname -I"):
			return "10.0.0.5", nil
		case strings.HasSuffix(command, "status=running"):
			return "homeassistant\n", nil
		}
		return "", nil
	})
	d.Wait = 50 * time.Millisecond

	_, err := d.Run(context.Background())
	var timeoutErr *gate.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Zero(t, host.Changes())
}

func TestDeploymentComposeUpFailure(t *testing.T) {
	d, host, _, _ := newDeployment(t, func(command string) (string, error) {
		switch {
		case strings.HasSuffix(command, "hostname -I"):
			return "10.0.0.5", nil
		case strings.HasSuffix(command, "up -d"):
			return "", errors.New("no configuration file provided")
		}
		return "", nil
	})

	_, err := d.Run(context.Background())
	assert.ErrorContains(t, err, "compose up")
	assert.Zero(t, host.Changes())
}

func TestDeploymentJournalFailureIsNotFatal(t *testing.T) {
	d, host, journal, _ := newDeployment(t, nil)
	journal.err = errors.New("disk full")

	res, err := d.Sync(context.Background(), "10.0.0.9")
	require.NoError(t, err)
	assert.Len(t, res.Mappings, 3)
	assert.Len(t, host.Rules(), 3)
}
