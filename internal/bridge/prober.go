package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultEmbeddedPort is where the game process serves the peer API.
	DefaultEmbeddedPort = 25555
	// DefaultBaseURL is the fallback peer address.
	DefaultBaseURL = "http://127.0.0.1:25555"
	// DefaultProbeTimeout bounds a single reachability probe.
	DefaultProbeTimeout = time.Second
)

// Prober checks whether a peer answers POST {base}/api/ping.
type Prober struct {
	Client  *http.Client
	Timeout time.Duration
}

// Probe returns nil when the peer answered with a 2xx status. A probe that
// runs out of time returns ErrProbeTimeout.
func (p *Prober) Probe(ctx context.Context, baseURL string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodPost, actionURL(baseURL, ActionPing), bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", ErrProbeTimeout, baseURL)
		}
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Action: ActionPing, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func actionURL(baseURL, action string) string {
	return strings.TrimRight(baseURL, "/") + "/api/" + url.PathEscape(action)
}

// embeddedOrigin returns the origin of pageOrigin when it is a loopback host
// on the embedded port, and "" otherwise.
func embeddedOrigin(pageOrigin string, port int) string {
	if pageOrigin == "" {
		return ""
	}
	u, err := url.Parse(pageOrigin)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		return ""
	}
	if u.Port() != strconv.Itoa(port) {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
