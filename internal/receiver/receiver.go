package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"notification-service/internal/gateway"
	"notification-service/internal/model"
)

// Options configures a Receiver. Strategy uses the same deployment enum as
// the gateway; the two sides must be configured with the same value.
type Options struct {
	BaseURL  string
	Token    string
	Strategy string

	// ReconnectAttempts bounds consecutive failed reconnects before the
	// receiver falls back to polling.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PollInterval      time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 2 * time.Second
	defaultPollInterval      = 30 * time.Second
)

// Receiver is the client side of push delivery: one transport connection,
// a local newest-first notification list reconciled against the fetch
// endpoint, and polling as the degraded mode when the transport is down.
// At any moment at most one of {transport connection, poll loop} is live.
type Receiver struct {
	opts      Options
	transport transport
	httpc     *http.Client
	logger    *zap.Logger

	mu        sync.Mutex
	items     []model.Notification
	unread    int
	seen      map[int64]struct{}
	connected bool
	polling   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) (*Receiver, error) {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultReconnectAttempts
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Receiver{
		opts:   opts,
		httpc:  opts.HTTPClient,
		logger: opts.Logger,
		seen:   make(map[int64]struct{}),
	}

	switch opts.Strategy {
	case gateway.StrategyWebSocket, "":
		r.transport = newWSTransport(opts.BaseURL, opts.Token)
	case gateway.StrategySSE:
		r.transport = newSSETransport(opts.BaseURL, opts.Token, opts.HTTPClient)
	default:
		return nil, fmt.Errorf("unknown transport strategy: %q", opts.Strategy)
	}
	return r, nil
}

// Start fetches the authoritative baseline, then runs push delivery in the
// background. The baseline fetch failing is a hard error; everything after
// it degrades gracefully.
func (r *Receiver) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	if err := r.Reconcile(ctx); err != nil {
		r.cancel()
		return fmt.Errorf("initial reconciliation failed: %w", err)
	}

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

// Close tears the session down: the active transport is closed or the
// pending poll timer cancelled, whichever is running.
func (r *Receiver) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// run alternates between push mode and poll mode. The loop is strictly
// sequential, which is what guarantees transport and poll timer are never
// live at the same time.
func (r *Receiver) run(ctx context.Context) {
	defer r.wg.Done()

	for ctx.Err() == nil {
		// Push mode: reconnect with the same strategy until the attempt
		// budget is spent. An attempt that established resets the budget.
		attempts := 0
		for ctx.Err() == nil && attempts < r.opts.ReconnectAttempts {
			established, err := r.connectOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			if established {
				attempts = 0
				r.logger.Warn("Transport connection lost", zap.Error(err))
			} else {
				attempts++
				r.logger.Warn("Transport connect attempt failed",
					zap.Int("attempt", attempts),
					zap.Int("budget", r.opts.ReconnectAttempts),
					zap.Error(err),
				)
			}
			if !sleepCtx(ctx, r.opts.ReconnectDelay) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		// Poll mode: fixed-interval fetches until one reconnect succeeds.
		r.logger.Info("Falling back to polling",
			zap.Duration("interval", r.opts.PollInterval),
		)
		r.setPolling(true)
		for ctx.Err() == nil {
			if !sleepCtx(ctx, r.opts.PollInterval) {
				break
			}
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Warn("Poll fetch failed", zap.Error(err))
			}
			// The poll timer is not pending while a reconnect is probed, so
			// the one-of-{transport,poll} invariant holds here too.
			established, _ := r.connectOnce(ctx)
			if established {
				r.logger.Info("Transport reconnected, leaving poll mode")
				break
			}
		}
		r.setPolling(false)
	}
}

// connectOnce opens one transport connection and blocks while it is healthy.
// established reports whether the connection came up at all, which separates
// "failed attempt" from "worked, then dropped" for the reconnect budget.
func (r *Receiver) connectOnce(ctx context.Context) (established bool, err error) {
	established, err = r.transport.connect(ctx, r.onConnected, r.handleEnvelope)
	r.setConnected(false)
	return established, err
}

// onConnected runs right after the transport comes up: mark the session
// healthy and reconcile once, because pushes issued while disconnected are
// gone from the channel forever.
func (r *Receiver) onConnected(ctx context.Context) {
	r.setConnected(true)
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Warn("Post-connect reconciliation failed", zap.Error(err))
	}
}

// handleEnvelope applies one pushed envelope: duplicate-suppressed prepend
// plus unread increment.
func (r *Receiver) handleEnvelope(env model.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[env.NotificationID]; dup {
		return
	}
	r.seen[env.NotificationID] = struct{}{}

	n := model.Notification{
		ID:            env.NotificationID,
		Type:          env.Type,
		Title:         env.Title,
		Message:       env.Message,
		Payload:       env.Payload,
		IsRead:        false,
		CreatedAt:     time.Now(),
		CorrelationID: env.CorrelationID,
	}
	r.items = append([]model.Notification{n}, r.items...)
	r.unread++
}

type listResponse struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

// Reconcile replaces local state with the server's authoritative set.
func (r *Receiver) Reconcile(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.BaseURL+"/notifications", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.opts.Token)

	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("reconciliation fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reconciliation fetch returned status %d", resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode notification list: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = body.Notifications
	r.unread = body.UnreadCount
	r.seen = make(map[int64]struct{}, len(body.Notifications))
	for _, n := range body.Notifications {
		r.seen[n.ID] = struct{}{}
	}
	return nil
}

// MarkRead optimistically flips one notification, then issues the durable
// update. On failure the local change is reverted and the error returned as
// a non-blocking warning to the caller.
func (r *Receiver) MarkRead(ctx context.Context, id int64) error {
	r.mu.Lock()
	flipped := false
	for i := range r.items {
		if r.items[i].ID == id && !r.items[i].IsRead {
			r.items[i].IsRead = true
			r.unread--
			flipped = true
			break
		}
	}
	r.mu.Unlock()

	err := r.postRead(ctx, map[string]any{"id": id})
	if err != nil && flipped {
		r.mu.Lock()
		for i := range r.items {
			if r.items[i].ID == id {
				r.items[i].IsRead = false
				r.unread++
				break
			}
		}
		r.mu.Unlock()
	}
	return err
}

// MarkAllRead optimistically clears the unread set, reverting on failure.
func (r *Receiver) MarkAllRead(ctx context.Context) error {
	r.mu.Lock()
	var flippedIDs []int64
	for i := range r.items {
		if !r.items[i].IsRead {
			r.items[i].IsRead = true
			flippedIDs = append(flippedIDs, r.items[i].ID)
		}
	}
	prevUnread := r.unread
	r.unread = 0
	r.mu.Unlock()

	err := r.postRead(ctx, map[string]any{"all": true})
	if err != nil && len(flippedIDs) > 0 {
		reverted := make(map[int64]struct{}, len(flippedIDs))
		for _, id := range flippedIDs {
			reverted[id] = struct{}{}
		}
		r.mu.Lock()
		for i := range r.items {
			if _, ok := reverted[r.items[i].ID]; ok {
				r.items[i].IsRead = false
			}
		}
		r.unread = prevUnread
		r.mu.Unlock()
	}
	return err
}

func (r *Receiver) postRead(ctx context.Context, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BaseURL+"/notifications/read", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.opts.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("read-state update failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("read-state update returned status %d", resp.StatusCode)
	}
	return nil
}

// Notifications returns a snapshot of the local newest-first list.
func (r *Receiver) Notifications() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Unread returns the local unread counter.
func (r *Receiver) Unread() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread
}

// Connected reports transport health, surfaced in the UI as a muted
// disconnected indicator, never a hard error.
func (r *Receiver) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Polling reports whether the receiver is in degraded poll mode.
func (r *Receiver) Polling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polling
}

func (r *Receiver) setConnected(v bool) {
	r.mu.Lock()
	r.connected = v
	r.mu.Unlock()
}

func (r *Receiver) setPolling(v bool) {
	r.mu.Lock()
	r.polling = v
	r.mu.Unlock()
}

// sleepCtx waits d or until ctx is cancelled; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
