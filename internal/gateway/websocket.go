package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"notification-service/internal/pubsub"
	"notification-service/pkg/metrics"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// wsStrategy is the persistent bidirectional session transport. Each
// connection is joined to its user's channel; frames received there are
// forwarded as text messages, liveness is kept with ping/pong control frames.
type wsStrategy struct {
	broker      pubsub.Broker
	pingPeriod  time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func newWSStrategy(broker pubsub.Broker, heartbeat, idleTimeout time.Duration, logger *zap.Logger) *wsStrategy {
	return &wsStrategy{
		broker:      broker,
		pingPeriod:  heartbeat,
		idleTimeout: idleTimeout,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *wsStrategy) Name() string { return StrategyWebSocket }
func (s *wsStrategy) Path() string { return "/ws" }

func (s *wsStrategy) Serve(c *gin.Context, userID int) {
	sess := newSession(StrategyWebSocket, userID, s.logger)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sess.logger.Error("WebSocket upgrade failed", zap.Error(err))
		sess.close("upgrade failed")
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
		conn.Close()
		return
	}

	// Every path out of this function releases the subscription and the
	// socket; no subscription survives a closed connection.
	writerDone := make(chan struct{})
	defer func() {
		close(writerDone)
		unsubscribe()
		conn.Close()
		sess.close("disconnect")
	}()

	sess.open()
	go s.writePump(conn, send, writerDone, sess)
	s.readPump(conn, sess)
}

// writePump forwards channel frames and sends periodic pings. A write failure
// closes the socket, which unblocks readPump and tears the connection down.
func (s *wsStrategy) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}, sess *session) {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				sess.logger.Warn("Failed to set write deadline", zap.Error(err))
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				sess.logger.Warn("Frame write failed", zap.Error(err))
				conn.Close()
				return
			}
			metrics.FramesDelivered.WithLabelValues(StrategyWebSocket, "message").Inc()
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.logger.Debug("Ping failed", zap.Error(err))
				conn.Close()
				return
			}
			metrics.FramesDelivered.WithLabelValues(StrategyWebSocket, "heartbeat").Inc()
		case <-done:
			return
		}
	}
}

// readPump blocks until the client goes away or the idle deadline passes.
// Inbound payloads are ignored; the read side exists for liveness only.
func (s *wsStrategy) readPump(conn *websocket.Conn, sess *session) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				sess.logger.Debug("Read loop ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	}
}
