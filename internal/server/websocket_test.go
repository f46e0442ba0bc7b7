package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightforge/siteaudit/internal/audit"
	"github.com/brightforge/siteaudit/internal/database"
)

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocketSubscribeGetsCurrentState(t *testing.T) {
	s, db, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	now := time.Now().UTC()
	grade := "B"
	a := &database.Audit{ID: "ws-done", URL: "x.com", NormalizedURL: "https://x.com", Status: database.StatusComplete, OverallGrade: &grade, CompletedAt: &now}
	require.NoError(t, db.CreateAudit(a))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)
	defer conn.CloseNow()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"audit_id":"ws-done"}`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var event audit.StatusEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "ws-done", event.AuditID)
	assert.Equal(t, database.StatusComplete, event.Status)
	assert.True(t, event.Done)
}

// Broadcasts race against clients connecting and dropping; the hub must
// survive the churn without corrupting its subscriber map.
func TestHubBroadcastDuringSubscriberChurn(t *testing.T) {
	s, db, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	a := &database.Audit{ID: "ws-churn", URL: "x.com", NormalizedURL: "https://x.com", Status: database.StatusRunning}
	require.NoError(t, db.CreateAudit(a))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.hub.Broadcast("ws-churn", audit.StatusEvent{
					AuditID: "ws-churn", Status: database.StatusRunning, Timestamp: time.Now(),
				})
			}
		}
	}()

	for i := 0; i < 25; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn := dialWS(t, ctx, ts)
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"audit_id":"ws-churn"}`)))
		_, _, err := conn.Read(ctx)
		require.NoError(t, err)
		// Drop the connection mid-broadcast so the hub has to prune it.
		conn.CloseNow()
		cancel()
	}

	close(stop)
	wg.Wait()

	// Every dropped client must eventually be pruned from the hub.
	require.Eventually(t, func() bool {
		s.hub.Broadcast("ws-churn", audit.StatusEvent{
			AuditID: "ws-churn", Status: database.StatusRunning, Timestamp: time.Now(),
		})
		s.hub.mu.RLock()
		defer s.hub.mu.RUnlock()
		return len(s.hub.clients["ws-churn"]) == 0
	}, 5*time.Second, 20*time.Millisecond)
}
