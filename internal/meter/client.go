// Package meter polls the Tibber Data API for raw device capability values.
package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL = "https://data-api.tibber.com/v1"
	requestTimeout = 30 * time.Second
)

// ErrAuth is returned when the API rejects the token.
var ErrAuth = errors.New("invalid token")

// APIError is a non-success response other than an auth failure.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d", e.Status)
}

type Home struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Info       struct {
		Name string `json:"name"`
	} `json:"info"`
}

// Name is the friendliest label available for the home.
func (h Home) Name() string {
	switch {
	case h.Info.Name != "":
		return h.Info.Name
	case h.ExternalID != "":
		return h.ExternalID
	}
	return h.ID
}

type Device struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Info       struct {
		Name  string `json:"name"`
		Brand string `json:"brand"`
		Model string `json:"model"`
	} `json:"info"`
	Capabilities []Capability `json:"capabilities"`
}

// Label renders "name (brand model)".
func (d Device) Label() string {
	name := d.Info.Name
	if name == "" {
		name = d.ExternalID
	}
	if name == "" {
		name = "Device"
	}
	var parts []string
	for _, p := range []string{d.Info.Brand, d.Info.Model} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(parts, " "))
}

type Capability struct {
	ID          string `json:"id"`
	Value       any    `json:"value"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return fmt.Errorf("request timed out: %w", err)
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuth
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Homes returns the homes visible to the token.
func (c *Client) Homes(ctx context.Context) ([]Home, error) {
	var payload struct {
		Homes []Home `json:"homes"`
	}
	if err := c.get(ctx, "/homes", &payload); err != nil {
		return nil, err
	}
	return payload.Homes, nil
}

// Devices returns the devices of a home.
func (c *Client) Devices(ctx context.Context, homeID string) ([]Device, error) {
	var payload struct {
		Devices []Device `json:"devices"`
	}
	if err := c.get(ctx, "/homes/"+url.PathEscape(homeID)+"/devices", &payload); err != nil {
		return nil, err
	}
	return payload.Devices, nil
}

// Device returns one device including its current capability values.
func (c *Client) Device(ctx context.Context, homeID, deviceID string) (*Device, error) {
	var d Device
	path := "/homes/" + url.PathEscape(homeID) + "/devices/" + url.PathEscape(deviceID)
	if err := c.get(ctx, path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
