package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

func TestPublishOnlyReachesTableSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a, b := uuid.New(), uuid.New()
	ca := hub.Subscribe(a)
	cb := hub.Subscribe(b)

	hub.PublishToken(a, 3, tokens.StatusBlocked)

	select {
	case msg := <-ca.Send:
		var ev TokenEvent
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, a, ev.TableID)
		assert.Equal(t, 3, ev.Number)
		assert.Equal(t, tokens.StatusBlocked, ev.Status)
	default:
		t.Fatal("subscriber of table a got nothing")
	}
	assert.Empty(t, cb.Send)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(nil)
	id := uuid.New()
	c := hub.Subscribe(id)

	for i := 0; i <= sendBuffer; i++ {
		hub.PublishToken(id, i+1, tokens.StatusOpen)
	}
	assert.Equal(t, 0, hub.Subscribers(id))

	n := 0
	for range c.Send {
		n++
	}
	assert.Equal(t, sendBuffer, n)

	// unsubscribing a dropped client is harmless
	hub.Unsubscribe(c)
}

func TestServeStreamsEvents(t *testing.T) {
	hub := NewHub(nil)
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, id)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(id) == 1 }, time.Second, 5*time.Millisecond)
	hub.PublishToken(id, 7, tokens.StatusBooked)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev TokenEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, 7, ev.Number)
	assert.Equal(t, tokens.StatusBooked, ev.Status)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers(id) == 0 }, time.Second, 5*time.Millisecond)
}
