package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notification-service/internal/pubsub"
	"notification-service/pkg/metrics"
)

// sseStrategy is the unidirectional push stream transport. One discrete
// event frame is written per channel message; comment frames are written on
// a fixed heartbeat interval so intermediaries do not time the stream out.
// Heartbeats carry no payload and never reach the client's notification list.
type sseStrategy struct {
	broker      pubsub.Broker
	heartbeat   time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger
}

func newSSEStrategy(broker pubsub.Broker, heartbeat, idleTimeout time.Duration, logger *zap.Logger) *sseStrategy {
	return &sseStrategy{
		broker:      broker,
		heartbeat:   heartbeat,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

func (s *sseStrategy) Name() string { return StrategySSE }
func (s *sseStrategy) Path() string { return "/events" }

func (s *sseStrategy) Serve(c *gin.Context, userID int) {
	sess := newSession(StrategySSE, userID, s.logger)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		sess.close("streaming unsupported")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	send := make(chan []byte, sendQueueSize)
	channel := pubsub.UserChannel(userID)
	unsubscribe, err := s.broker.Subscribe(c.Request.Context(), channel, func(payload []byte) {
		select {
		case send <- payload:
		default:
			sess.logger.Warn("Send queue full, dropping frame")
		}
	})
	if err != nil {
		sess.logger.Error("Channel subscription failed", zap.Error(err))
		sess.close("subscribe failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push backend unavailable"})
		return
	}

	var closeReason string
	defer func() {
		unsubscribe()
		sess.close(closeReason)
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	flusher.Flush()
	sess.open()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case payload := <-send:
			if _, err := fmt.Fprintf(c.Writer, "event: notification\ndata: %s\n\n", payload); err != nil {
				closeReason = "write failed"
				return
			}
			flusher.Flush()
			metrics.FramesDelivered.WithLabelValues(StrategySSE, "message").Inc()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleTimeout)
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				closeReason = "heartbeat write failed"
				return
			}
			flusher.Flush()
			metrics.FramesDelivered.WithLabelValues(StrategySSE, "heartbeat").Inc()
		case <-idle.C:
			closeReason = "idle timeout"
			return
		case <-clientGone:
			closeReason = "client disconnect"
			return
		}
	}
}
