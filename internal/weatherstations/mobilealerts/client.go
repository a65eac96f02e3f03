package mobilealerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chrissnell/homewx/internal/constants"
)

// Response is the body returned by the lastmeasurement endpoint.
type Response struct {
	Success      bool     `json:"success"`
	Devices      []Device `json:"devices"`
	ErrorCode    int      `json:"errorcode,omitempty"`
	ErrorMessage string   `json:"errormessage,omitempty"`
}

// Device is the latest measurement of one sensor.
type Device struct {
	DeviceID    string      `json:"deviceid"`
	LastSeen    int64       `json:"lastseen,omitempty"`
	LowBattery  bool        `json:"lowbattery,omitempty"`
	Measurement Measurement `json:"measurement"`
}

// Measurement holds the sensor-specific fields. Numbers decode as float64.
type Measurement map[string]interface{}

// Number returns a numeric field.
func (m Measurement) Number(key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// Timestamp returns the measurement time, or fallback when absent.
func (m Measurement) Timestamp(fallback time.Time) time.Time {
	if ts, ok := m.Number("ts"); ok && ts > 0 {
		return time.Unix(int64(ts), 0)
	}
	return fallback
}

// Client talks to the Mobile Alerts REST API.
type Client struct {
	endpoint string
	phoneID  string
	http     *http.Client
}

// NewClient creates an API client. phoneID is optional; it makes the cloud
// deliver alarms configured in the app.
func NewClient(endpoint, phoneID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{endpoint: endpoint, phoneID: phoneID, http: httpClient}
}

// LastMeasurement fetches the latest measurement of every device in ids.
func (c *Client) LastMeasurement(ctx context.Context, ids []string) (*Response, error) {
	form := url.Values{}
	form.Set("deviceids", strings.Join(ids, ","))
	if c.phoneID != "" {
		form.Set("phoneid", c.phoneID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", constants.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad response from server (status %d): %s", resp.StatusCode, string(body))
	}

	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	if !r.Success {
		return nil, fmt.Errorf("API error %d: %s", r.ErrorCode, r.ErrorMessage)
	}

	return &r, nil
}
