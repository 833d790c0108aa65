// Package ari implements the call lifecycle controller on top of the
// Asterisk REST Interface: a WebSocket event stream for the Stasis
// application plus an HTTP REST client for channel/bridge control.
package ari

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is a thin ARI REST + event-stream client for one Stasis
// application.
type Client struct {
	baseURL  string
	username string
	password string
	appName  string
	http     *http.Client

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan Event
	closed bool
}

// NewClient builds a Client. baseURL is the ARI root (e.g.
// "http://127.0.0.1:8088/ari").
func NewClient(baseURL, username, password, appName string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		appName:  appName,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect opens the ARI WebSocket event stream for this Stasis application
// and starts the read pump. Events() is valid once Connect returns nil.
func (c *Client) Connect(ctx context.Context) error {
	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ari: websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.events = make(chan Event, 64)
	c.mu.Unlock()

	go c.readPump()
	return nil
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("ari: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	q := u.Query()
	q.Set("app", c.appName)
	q.Set("api_key", c.username+":"+c.password)
	q.Set("subscribeAll", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) readPump() {
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("ari: event stream read failed")
			return
		}
		ev, err := parseEvent(raw)
		if err != nil {
			log.Warn().Err(err).Msg("ari: malformed event")
			continue
		}
		c.events <- ev
	}
}

// Events returns the ARI event stream.
func (c *Client) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Close tears down the event-stream connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		c.closed = true
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// request issues one ARI REST call and decodes the JSON response into out
// (nil to discard the body).
func (c *Client) request(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ari: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ari: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Answer answers channelID.
func (c *Client) Answer(ctx context.Context, channelID string) error {
	return c.request(ctx, http.MethodPost, "/channels/"+channelID+"/answer", nil, nil)
}

// Hangup ends channelID.
func (c *Client) Hangup(ctx context.Context, channelID, reason string) error {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", reason)
	}
	return c.request(ctx, http.MethodDelete, "/channels/"+channelID, q, nil)
}

// Originate starts a new channel dialing endpoint into this Stasis
// application, used for blind/attended transfer consult legs.
func (c *Client) Originate(ctx context.Context, endpoint, callerID string) (string, error) {
	q := url.Values{}
	q.Set("endpoint", endpoint)
	q.Set("app", c.appName)
	if callerID != "" {
		q.Set("callerId", callerID)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/channels", q, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateBridge creates a mixing bridge and returns its id.
func (c *Client) CreateBridge(ctx context.Context, bridgeType string) (string, error) {
	if bridgeType == "" {
		bridgeType = "mixing"
	}
	q := url.Values{}
	q.Set("type", bridgeType)
	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/bridges", q, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AddChannelToBridge adds channelID to bridgeID.
func (c *Client) AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error {
	q := url.Values{}
	q.Set("channel", channelID)
	return c.request(ctx, http.MethodPost, "/bridges/"+bridgeID+"/addChannel", q, nil)
}

// RemoveChannelFromBridge removes channelID from bridgeID.
func (c *Client) RemoveChannelFromBridge(ctx context.Context, bridgeID, channelID string) error {
	q := url.Values{}
	q.Set("channel", channelID)
	return c.request(ctx, http.MethodPost, "/bridges/"+bridgeID+"/removeChannel", q, nil)
}

// DestroyBridge tears down bridgeID.
func (c *Client) DestroyBridge(ctx context.Context, bridgeID string) error {
	return c.request(ctx, http.MethodDelete, "/bridges/"+bridgeID, nil, nil)
}

// Snoop creates a snoop channel on channelID for spying/whispering audio,
// used to tap the caller leg for the provider's ExternalMedia/AudioSocket
// transport without sitting in the primary bridge.
func (c *Client) Snoop(ctx context.Context, channelID, spy, whisper, appArgs string) (string, error) {
	q := url.Values{}
	q.Set("spy", spy)
	if whisper != "" {
		q.Set("whisper", whisper)
	}
	q.Set("app", c.appName)
	if appArgs != "" {
		q.Set("appArgs", appArgs)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/channels/"+channelID+"/snoop", q, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ExternalMedia creates an ExternalMedia channel carrying RTP in encoding
// between the switch and externalHost, and returns its channel id; the
// caller bridges it to the call's channel.
func (c *Client) ExternalMedia(ctx context.Context, externalHost, encoding string) (string, error) {
	q := url.Values{}
	q.Set("app", c.appName)
	q.Set("external_host", externalHost)
	q.Set("format", encoding)
	q.Set("transport", "udp")
	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/channels/externalMedia", q, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Play starts playback of media (e.g. "sound:vm-goodbye" for voicemail
// drop, or a greeting prompt) on channelID and returns the playback id.
func (c *Client) Play(ctx context.Context, channelID, media string) (string, error) {
	q := url.Values{}
	q.Set("media", media)
	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/channels/"+channelID+"/play", q, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ChannelVar fetches an Asterisk channel variable (used for
// extension-status lookups via hint/device-state dialplan functions).
func (c *Client) ChannelVar(ctx context.Context, channelID, variable string) (string, error) {
	q := url.Values{}
	q.Set("variable", variable)
	var out struct {
		Value string `json:"value"`
	}
	if err := c.request(ctx, http.MethodGet, "/channels/"+channelID+"/variable", q, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

// DeviceState fetches a device's state (NOT_INUSE, INUSE, BUSY,
// UNAVAILABLE, ...), used by the extension_status tool.
func (c *Client) DeviceState(ctx context.Context, device string) (string, error) {
	var out struct {
		State string `json:"state"`
	}
	if err := c.request(ctx, http.MethodGet, "/deviceStates/"+url.PathEscape(device), nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}
