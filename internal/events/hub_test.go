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

	"pubreg.chain/pubreg/internal/types"
)

var (
	alice = types.DeriveAddress("alice")
	bob   = types.DeriveAddress("bob")
)

func note(id uint64, author types.Address) types.Notification {
	return types.Notification{Type: types.EventBookRegistered, BookID: id, Author: author}
}

func TestSubscribeReceivesMatchingNotifications(t *testing.T) {
	h := NewHub(10)
	all, cancelAll := h.Subscribe(Filter{})
	defer cancelAll()
	onlyBob, cancelBob := h.Subscribe(Filter{Author: bob})
	defer cancelBob()

	h.Publish(note(1, alice))
	h.Publish(note(2, bob))

	assert.Equal(t, uint64(1), (<-all).BookID)
	assert.Equal(t, uint64(2), (<-all).BookID)
	assert.Equal(t, uint64(2), (<-onlyBob).BookID)
	assert.Len(t, onlyBob, 0)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe(Filter{})
	defer cancel()

	for i := 0; i < subscriberBacklog+5; i++ {
		h.Publish(note(uint64(i+1), alice))
	}
	assert.Len(t, ch, subscriberBacklog)
}

func TestCancelUnsubscribes(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe(Filter{})
	require.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())
	_, ok := <-ch
	assert.False(t, ok)

	h.Publish(note(1, alice))
}

func TestSubscribeWithRecentSplitsReplayAndLive(t *testing.T) {
	h := NewHub(10)
	h.Publish(note(1, alice))
	h.Publish(note(2, bob))

	replay, ch, cancel := h.SubscribeWithRecent(Filter{}, 10)
	defer cancel()
	require.Len(t, replay, 2)
	assert.Equal(t, uint64(1), replay[0].BookID)
	assert.Equal(t, uint64(2), replay[1].BookID)
	assert.Len(t, ch, 0)

	h.Publish(note(3, alice))
	require.Len(t, ch, 1)
	assert.Equal(t, uint64(3), (<-ch).BookID)

	replay, _, cancelBob := h.SubscribeWithRecent(Filter{Author: bob}, 10)
	defer cancelBob()
	require.Len(t, replay, 1)
	assert.Equal(t, uint64(2), replay[0].BookID)
}

func TestRecentKeepsBoundedHistory(t *testing.T) {
	h := NewHub(3)
	for i := 1; i <= 5; i++ {
		h.Publish(note(uint64(i), alice))
	}
	h.Publish(note(6, bob))

	recent := h.Recent(Filter{}, 10)
	require.Len(t, recent, 3)
	assert.Equal(t, uint64(4), recent[0].BookID)
	assert.Equal(t, uint64(6), recent[2].BookID)

	assert.Len(t, h.Recent(Filter{Author: bob}, 10), 1)
	assert.Len(t, h.Recent(Filter{}, 2), 2)
}

func TestServeWSStreamsNotifications(t *testing.T) {
	h := NewHub(10)
	h.Publish(note(1, alice))

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var replayed types.Notification
	require.NoError(t, conn.ReadJSON(&replayed))
	assert.Equal(t, uint64(1), replayed.BookID)

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.Publish(note(2, bob))

	var live types.Notification
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, uint64(2), live.BookID)
	assert.Equal(t, bob, live.Author)
}

func TestServeWSRejectsBadAuthorFilter(t *testing.T) {
	h := NewHub(10)
	rec := httptest.NewRecorder()
	h.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/api/events?author=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
