package meter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homeport/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

const DefaultInterval = 10 * time.Second

// ReadingStore persists readings.
type ReadingStore interface {
	SaveReadings(readings []models.Reading) error
}

type Poller struct {
	Client   *Client
	Store    ReadingStore
	HomeID   string
	DeviceID string
	Interval time.Duration

	now func() time.Time
}

func NewPoller(client *Client, store ReadingStore, homeID, deviceID string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		Client:   client,
		Store:    store,
		HomeID:   homeID,
		DeviceID: deviceID,
		Interval: interval,
		now:      time.Now,
	}
}

// PollOnce fetches the device and stores one reading per capability.
func (p *Poller) PollOnce(ctx context.Context) ([]models.Reading, error) {
	device, err := p.Client.Device(ctx, p.HomeID, p.DeviceID)
	if err != nil {
		return nil, err
	}
	readings := Readings(p.HomeID, p.DeviceID, device.Capabilities, p.now().UTC())
	if err := p.Store.SaveReadings(readings); err != nil {
		return nil, fmt.Errorf("storing readings: %w", err)
	}
	return readings, nil
}

// Run polls until ctx is done. An auth failure ends the loop; other failures
// are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	log := logrus.WithFields(logrus.Fields{"home": p.HomeID, "device": p.DeviceID})
	for {
		readings, err := p.PollOnce(ctx)
		switch {
		case err == nil:
			log.Debugf("Stored %d readings", len(readings))
		case errors.Is(err, ErrAuth):
			return err
		case ctx.Err() != nil:
			return nil
		default:
			log.Warnf("Polling failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Readings converts capabilities into readings. Capabilities without an id
// are skipped; non-numeric values keep only their raw form.
func Readings(homeID, deviceID string, caps []Capability, at time.Time) []models.Reading {
	out := make([]models.Reading, 0, len(caps))
	for _, c := range caps {
		if c.ID == "" {
			continue
		}
		r := models.Reading{
			HomeID:      homeID,
			DeviceID:    deviceID,
			Capability:  c.ID,
			Unit:        c.Unit,
			Description: c.Description,
			TakenAt:     at,
		}
		if c.Value != nil {
			r.Raw = cast.ToString(c.Value)
			if r.Raw == "" {
				r.Raw = fmt.Sprint(c.Value)
			}
			if v, err := cast.ToFloat64E(c.Value); err == nil {
				r.Value = &v
			}
		}
		out = append(out, r)
	}
	return out
}
