package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chrissnell/homewx/pkg/config"
	"github.com/jonboulle/clockwork"
)

// ErrLimitReached is returned while the monthly Pushover message allowance
// is used up.
var ErrLimitReached = errors.New("pushover message limit reached")

// Pushover sends messages through the Pushover API.
type Pushover struct {
	cfg    config.PushoverData
	client *http.Client
	clock  clockwork.Clock

	// OnLimit, when set, receives the remaining message allowance after
	// every successful request.
	OnLimit func(remaining int)

	mu        sync.Mutex
	remaining int // -1 until the first response
	reset     time.Time
}

// NewPushover creates a Pushover client.
func NewPushover(cfg config.PushoverData, client *http.Client, clock clockwork.Clock) *Pushover {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pushover{cfg: cfg, client: client, clock: clock, remaining: -1}
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// Remaining returns the last known message allowance, -1 if unknown.
func (p *Pushover) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}

func (p *Pushover) Notify(ctx context.Context, msg Message) error {
	p.mu.Lock()
	exhausted := p.remaining == 0 && p.clock.Now().Before(p.reset)
	p.mu.Unlock()
	if exhausted {
		return ErrLimitReached
	}

	if msg.Sound == "" {
		msg.Sound = p.cfg.Sound
	}

	req, err := p.newRequest(ctx, msg)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending pushover request: %w", err)
	}
	defer resp.Body.Close()

	p.updateLimit(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading pushover response: %w", err)
	}

	var pr pushoverResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return fmt.Errorf("bad response from pushover (status %d): %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK || pr.Status != 1 {
		return fmt.Errorf("pushover rejected message (status %d): %v", resp.StatusCode, pr.Errors)
	}

	return nil
}

func (p *Pushover) newRequest(ctx context.Context, msg Message) (*http.Request, error) {
	fields := url.Values{}
	fields.Set("token", p.cfg.Token)
	fields.Set("user", p.cfg.User)
	fields.Set("message", msg.Message)
	if msg.Title != "" {
		fields.Set("title", msg.Title)
	}
	if msg.Sound != "" {
		fields.Set("sound", msg.Sound)
	}

	if msg.Attachment == "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewBufferString(fields.Encode()))
		if err != nil {
			return nil, fmt.Errorf("error creating pushover request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k := range fields {
		if err := w.WriteField(k, fields.Get(k)); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(msg.Attachment)
	if err != nil {
		return nil, fmt.Errorf("error opening attachment: %w", err)
	}
	defer f.Close()

	part, err := w.CreateFormFile("attachment", filepath.Base(msg.Attachment))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("error reading attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("error creating pushover request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func (p *Pushover) updateLimit(h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-Limit-App-Remaining"))
	if err != nil {
		return
	}

	p.mu.Lock()
	p.remaining = remaining
	if reset, err := strconv.ParseInt(h.Get("X-Limit-App-Reset"), 10, 64); err == nil {
		p.reset = time.Unix(reset, 0)
	}
	p.mu.Unlock()

	if p.OnLimit != nil {
		p.OnLimit(remaining)
	}
}
