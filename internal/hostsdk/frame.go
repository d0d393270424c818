package hostsdk

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gaspardpetit/shittim/internal/bridge"
)

// Path is where a peer serves the host SDK websocket.
const Path = "/bridge/ws"

// FeedURL returns the host SDK websocket of the peer at baseURL: http maps
// to ws and https to wss.
func FeedURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("hostsdk: unsupported peer scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hostsdk: peer url %q has no host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + Path
	u.RawQuery, u.Fragment = "", ""
	return u.String(), nil
}

// Frame types exchanged on the host SDK websocket.
const (
	FrameReady     = "ready"
	FrameCall      = "call"
	FrameResult    = "result"
	FrameEvent     = "event"
	FrameConfigure = "configure"
)

// Frame is the single envelope used in both directions. Only the fields of
// the given type are set.
type Frame struct {
	Type    string            `json:"t"`
	ID      string            `json:"id,omitempty"`
	Version string            `json:"version,omitempty"`
	Action  string            `json:"action,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Server  bool              `json:"server,omitempty"`
	OK      bool              `json:"ok,omitempty"`
	Data    json.RawMessage   `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Name    string            `json:"name,omitempty"`
	Config  *bridge.SDKConfig `json:"config,omitempty"`
}
