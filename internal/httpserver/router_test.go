package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "notification-service/contracts/mq"
	"notification-service/internal/gateway"
	"notification-service/internal/model"
	"notification-service/internal/pubsub"
	"notification-service/internal/recipient"
	"notification-service/internal/service"
	"notification-service/internal/store"
	"notification-service/internal/util"
	"notification-service/pkg/config"
)

const testJWTSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	store      *store.Memory
	dispatcher *service.Dispatcher
	router     *Router
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemory()
	broker := pubsub.NewMemoryBroker()
	dispatcher := service.NewDispatcher(st, broker, recipient.NewResolver(zap.NewNop()), nil, zap.NewNop())
	t.Cleanup(dispatcher.Close)

	gw, err := gateway.New(config.TransportConfig{Strategy: "websocket"}, broker, zap.NewNop())
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}

	handler := NewNotificationHandler(st, dispatcher, zap.NewNop())
	router := NewRouter(handler, gw, testJWTSecret, nil)

	return &testServer{store: st, dispatcher: dispatcher, router: router}
}

func token(t *testing.T, userID int) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, testJWTSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func doRequest(ts *testServer, method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	ts.router.Engine.ServeHTTP(w, req)
	return w
}

func createRow(t *testing.T, ts *testServer, userID int, typ string) int64 {
	t.Helper()
	id, err := ts.store.Create(context.Background(), &model.Notification{
		OwnerUserID:   userID,
		Type:          typ,
		Title:         "t",
		Message:       "m",
		CreatedAt:     time.Now(),
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("create row: %v", err)
	}
	return id
}

func TestEndpointsRequireAuth(t *testing.T) {
	ts := setupTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/notifications"},
		{http.MethodPost, "/notifications/read"},
		{http.MethodPost, "/internal/notify"},
		{http.MethodGet, "/ws"},
	} {
		w := doRequest(ts, route.method, route.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", route.method, route.path, w.Code)
		}
	}

	w := doRequest(ts, http.MethodGet, "/notifications", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", w.Code)
	}
}

func TestListEmpty(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(ts, http.MethodGet, "/notifications", token(t, 1), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Notifications []model.Notification `json:"notifications"`
		UnreadCount   int                  `json:"unread_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Notifications == nil || len(body.Notifications) != 0 || body.UnreadCount != 0 {
		t.Fatalf("expected empty list and zero unread, got %+v", body)
	}
}

func TestListIsNewestFirstAndScopedToOwner(t *testing.T) {
	ts := setupTestServer(t)

	first := createRow(t, ts, 1, "mention")
	time.Sleep(2 * time.Millisecond)
	second := createRow(t, ts, 1, "status_changed")
	createRow(t, ts, 2, "mention") // other user's row

	w := doRequest(ts, http.MethodGet, "/notifications", token(t, 1), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Notifications []model.Notification `json:"notifications"`
		UnreadCount   int                  `json:"unread_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 2 || body.UnreadCount != 2 {
		t.Fatalf("expected 2 own rows unread, got %+v", body)
	}
	if body.Notifications[0].ID != second || body.Notifications[1].ID != first {
		t.Fatalf("expected newest-first order, got %d then %d", body.Notifications[0].ID, body.Notifications[1].ID)
	}
}

func TestMarkAllReadZeroesUnread(t *testing.T) {
	ts := setupTestServer(t)

	createRow(t, ts, 1, "mention")
	createRow(t, ts, 1, "status_changed")

	w := doRequest(ts, http.MethodPost, "/notifications/read", token(t, 1), map[string]any{"all": true})
	if w.Code != http.StatusOK {
		t.Fatalf("mark all read: expected 200, got %d", w.Code)
	}

	w = doRequest(ts, http.MethodGet, "/notifications", token(t, 1), nil)
	var body struct {
		Notifications []model.Notification `json:"notifications"`
		UnreadCount   int                  `json:"unread_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UnreadCount != 0 {
		t.Fatalf("expected unread 0, got %d", body.UnreadCount)
	}
	for _, n := range body.Notifications {
		if !n.IsRead {
			t.Fatalf("row %d still unread after mark-all", n.ID)
		}
	}
}

func TestMarkReadTwiceIsNoOp(t *testing.T) {
	ts := setupTestServer(t)

	id := createRow(t, ts, 1, "mention")

	for i := 0; i < 2; i++ {
		w := doRequest(ts, http.MethodPost, "/notifications/read", token(t, 1), map[string]any{"id": id})
		if w.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i+1, w.Code)
		}
	}

	rows, unread, _ := ts.store.List(context.Background(), 1)
	if unread != 0 || !rows[0].IsRead {
		t.Fatalf("expected read row after repeated calls, got unread=%d", unread)
	}
}

func TestMarkReadCannotTouchOtherUsersRows(t *testing.T) {
	ts := setupTestServer(t)

	id := createRow(t, ts, 2, "mention")

	w := doRequest(ts, http.MethodPost, "/notifications/read", token(t, 1), map[string]any{"id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 (no-op), got %d", w.Code)
	}

	_, unread, _ := ts.store.List(context.Background(), 2)
	if unread != 1 {
		t.Fatal("user 1 must not flip user 2's row")
	}
}

func TestMarkReadRequiresIDOrAll(t *testing.T) {
	ts := setupTestServer(t)

	w := doRequest(ts, http.MethodPost, "/notifications/read", token(t, 1), map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestInternalNotifyDispatches(t *testing.T) {
	ts := setupTestServer(t)

	payload := mqcontracts.NotifyRequestedPayload{
		CorrelationID: uuid.NewString(),
		Type:          "status_changed",
		Title:         "Task moved",
		ActorID:       1,
		Team: mqcontracts.TeamInfo{
			ID:                   10,
			NotificationsEnabled: true,
			NotifyAllMembers:     true,
			MemberIDs:            []int{1, 2, 3},
		},
	}

	w := doRequest(ts, http.MethodPost, "/internal/notify", token(t, 1), payload)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var res struct {
		Recipients []int `json:"recipients"`
		Persisted  int   `json:"persisted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Persisted != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", res.Persisted)
	}

	// Same correlation id again: rows must not double.
	w = doRequest(ts, http.MethodPost, "/internal/notify", token(t, 1), payload)
	if w.Code != http.StatusAccepted {
		t.Fatalf("redelivery: expected 202, got %d", w.Code)
	}
	for _, userID := range []int{2, 3} {
		rows, _, _ := ts.store.List(context.Background(), userID)
		if len(rows) != 1 {
			t.Fatalf("user %d: expected 1 row after redelivery, got %d", userID, len(rows))
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := setupTestServer(t)

	if w := doRequest(ts, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if w := doRequest(ts, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("readyz without db must be ready: %d", w.Code)
	}
	if w := doRequest(ts, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
}
