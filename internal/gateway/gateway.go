package gateway

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"notification-service/internal/pubsub"
	"notification-service/pkg/config"
	"notification-service/pkg/metrics"
)

const (
	StrategyWebSocket = "websocket"
	StrategySSE       = "sse"
)

const (
	defaultHeartbeat   = 25 * time.Second
	defaultIdleTimeout = 5 * time.Minute
)

// Strategy is one push delivery mechanism. Serve owns the whole connection
// lifecycle: subscribe on entry, forward frames, release the subscription on
// every exit path.
type Strategy interface {
	Name() string
	Path() string
	Serve(c *gin.Context, userID int)
}

// Gateway bridges the pub/sub backend to connected clients through the one
// strategy selected at startup. No call site branches on the strategy again.
type Gateway struct {
	strategy Strategy
	logger   *zap.Logger
}

func New(cfg config.TransportConfig, broker pubsub.Broker, logger *zap.Logger) (*Gateway, error) {
	heartbeat := defaultHeartbeat
	if cfg.HeartbeatSeconds > 0 {
		heartbeat = time.Duration(cfg.HeartbeatSeconds) * time.Second
	}
	idleTimeout := defaultIdleTimeout
	if cfg.IdleTimeoutSeconds > 0 {
		idleTimeout = time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	}

	var strategy Strategy
	switch cfg.Strategy {
	case StrategyWebSocket, "":
		strategy = newWSStrategy(broker, heartbeat, idleTimeout, logger)
	case StrategySSE:
		strategy = newSSEStrategy(broker, heartbeat, idleTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown transport strategy: %q", cfg.Strategy)
	}

	logger.Info("Transport gateway initialized",
		zap.String("strategy", strategy.Name()),
		zap.Duration("heartbeat", heartbeat),
		zap.Duration("idle_timeout", idleTimeout),
	)
	return &Gateway{strategy: strategy, logger: logger}, nil
}

// Strategy returns the active delivery strategy.
func (g *Gateway) Strategy() Strategy {
	return g.strategy
}

// Handler is the gin handler for the strategy's route. It runs behind the
// auth middleware; a missing user id means the connection was never
// authenticated and is rejected before any subscription exists.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt("user_id")
		if userID == 0 {
			c.JSON(401, gin.H{"error": "user not authenticated"})
			return
		}
		g.strategy.Serve(c, userID)
	}
}

// Connection lifecycle: CONNECTING -> OPEN -> CLOSED. CLOSED is terminal and
// reached on client disconnect, server shutdown, unsubscribe or idle timeout.
const (
	stateConnecting = "CONNECTING"
	stateOpen       = "OPEN"
	stateClosed     = "CLOSED"
)

// session tracks one connection's identity and state for logs and metrics.
type session struct {
	id        string
	userID    int
	transport string
	state     string
	logger    *zap.Logger
}

func newSession(transport string, userID int, logger *zap.Logger) *session {
	sessionID := uuid.NewString()
	s := &session{
		id:        sessionID,
		userID:    userID,
		transport: transport,
		state:     stateConnecting,
		logger: logger.With(
			zap.String("session_id", sessionID),
			zap.Int("user_id", userID),
			zap.String("transport", transport),
		),
	}
	s.logger.Debug("Connection connecting")
	return s
}

func (s *session) open() {
	s.state = stateOpen
	metrics.ActiveConnections.WithLabelValues(s.transport).Inc()
	s.logger.Info("Connection open")
}

func (s *session) close(reason string) {
	if s.state == stateClosed {
		return
	}
	wasOpen := s.state == stateOpen
	s.state = stateClosed
	if wasOpen {
		metrics.ActiveConnections.WithLabelValues(s.transport).Dec()
	}
	s.logger.Info("Connection closed", zap.String("reason", reason))
}
