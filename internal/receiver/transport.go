package receiver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"notification-service/internal/model"
)

// transport is one client-side delivery mechanism. connect blocks while the
// connection is healthy; established distinguishes a connection that never
// came up from one that worked and then dropped.
type transport interface {
	name() string
	connect(ctx context.Context, onConnected func(context.Context), onEnvelope func(model.Envelope)) (established bool, err error)
}

// wsTransport dials the gateway's bidirectional session endpoint.
type wsTransport struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
}

func newWSTransport(baseURL, token string) *wsTransport {
	return &wsTransport{
		baseURL: baseURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
	}
}

func (t *wsTransport) name() string { return "websocket" }

func (t *wsTransport) connect(ctx context.Context, onConnected func(context.Context), onEnvelope func(model.Envelope)) (bool, error) {
	u, err := wsURL(t.baseURL, "/ws", t.token)
	if err != nil {
		return false, err
	}

	conn, resp, err := t.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return false, fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	// Session teardown closes the socket, which unblocks the read loop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	onConnected(ctx)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("websocket read failed: %w", err)
		}
		var env model.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			// Malformed frame: skip, reconciliation will catch the row.
			continue
		}
		onEnvelope(env)
	}
}

// sseTransport consumes the gateway's one-way event stream. Comment frames
// (heartbeats) are filtered by the parser and never surface as notifications.
type sseTransport struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func newSSETransport(baseURL, token string, httpc *http.Client) *sseTransport {
	return &sseTransport{
		baseURL: baseURL,
		token:   token,
		httpc:   httpc,
	}
}

func (t *sseTransport) name() string { return "sse" }

func (t *sseTransport) connect(ctx context.Context, onConnected func(context.Context), onEnvelope func(model.Envelope)) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/events?token="+url.QueryEscape(t.token), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("event stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	onConnected(ctx)

	var eventName string
	var data strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventName == "notification" && data.Len() > 0 {
				var env model.Envelope
				if err := json.Unmarshal([]byte(data.String()), &env); err == nil {
					onEnvelope(env)
				}
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment frame: keep-alive only, no semantic payload.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if ctx.Err() != nil {
		return true, nil
	}
	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("event stream read failed: %w", err)
	}
	return true, fmt.Errorf("event stream closed by server")
}

// wsURL converts the service base URL into the websocket endpoint with the
// auth token in the query string.
func wsURL(baseURL, path, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
