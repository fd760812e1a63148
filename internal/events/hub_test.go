package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/vizai/pkg/models"
)

func dial(t *testing.T, h *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.Listeners(sessionID) > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestPublishReachesListener(t *testing.T) {
	h := NewHub()
	conn := dial(t, h, "s1")

	h.Publish("s1", models.StageLLM, "Getting response from LLM...")
	h.Publish("other", models.StageLLM, "not for s1")
	h.Publish("s1", models.StageDone, "Done")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, models.StageLLM, ev.Stage)
	assert.Equal(t, "Getting response from LLM...", ev.Message)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.StageDone, ev.Stage)
}

func TestCloseDisconnectsListeners(t *testing.T) {
	h := NewHub()
	conn := dial(t, h, "s1")

	h.Close("s1")
	assert.Equal(t, 0, h.Listeners("s1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestPublishWithoutListeners(t *testing.T) {
	h := NewHub()
	assert.NotPanics(t, func() { h.Publish("nobody", models.StageDone, "Done") })
}
