package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stravx/conquest/internal/notify"
	"github.com/stravx/conquest/internal/territory"
)

var _ notify.Notifier = (*Streamer)(nil)

// testServer upgrades every request, records envelopes and acks hello and
// goodbye.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.setSecret(r.URL.Query().Get("secret"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == TypeHello || env.Type == TypeGoodbye {
				data, _ := json.Marshal(AckMessage{Type: TypeAck, For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	secret   string
	messages []Envelope
}

func (m *messageLog) add(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) setSecret(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = s
}

func (m *messageLog) all() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) types() []string {
	var out []string
	for _, env := range m.all() {
		out = append(out, env.Type)
	}
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestInitSendsHello(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv), Secret: "test", Channel: "berlin"}, nil)
	require.NoError(t, s.Init())
	require.NoError(t, s.Close())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, TypeHello, msgs[0].Type)
	assert.Equal(t, TypeGoodbye, msgs[len(msgs)-1].Type)

	var hello HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, HelloPayload{Service: "conquest", Channel: "berlin"}, hello)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secret)
	ml.mu.Unlock()
}

func TestNotifyStreamsEvents(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, s.Init())
	defer s.Close()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, s.Notify(ctx, territory.Event{Kind: territory.EventAttacked, TileID: "15_1_2", OwnerID: "alice", Strength: 10, ActorName: "Bob", At: at}))
	require.NoError(t, s.Notify(ctx, territory.Event{Kind: territory.EventLost, TileID: "15_1_2", OwnerID: "alice", At: at}))

	require.Eventually(t, func() bool { return len(ml.all()) >= 3 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{TypeHello, "territory.attacked", "territory.lost"}, ml.types())

	var p EventPayload
	require.NoError(t, json.Unmarshal(ml.all()[1].Payload, &p))
	assert.Equal(t, "15_1_2", p.TileID)
	assert.Equal(t, "alice", p.OwnerID)
	assert.Equal(t, 10, p.Strength)
	assert.Equal(t, "Bob", p.ActorName)
	assert.True(t, at.Equal(p.At))
	assert.Equal(t, 0, s.Dropped())
}

func TestNotifyCancelledContext(t *testing.T) {
	s := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Notify(ctx, territory.Event{Kind: territory.EventLost}), context.Canceled)
}

func TestPublishAfterClose(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	s := New(Config{URL: wsURL(srv)}, nil)
	require.NoError(t, s.Init())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Publish("session.summary", map[string]int{"xp": 10}), ErrClosed)
}

func TestInitUnreachable(t *testing.T) {
	s := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	err := s.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
}

func TestEnvelopeSerialization(t *testing.T) {
	data, err := marshalEnvelope("territory.weak", EventPayload{TileID: "15_3_4", Strength: 20})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "territory.weak", env.Type)
	assert.JSONEq(t, `{"tileId":"15_3_4","strength":20,"at":"0001-01-01T00:00:00Z"}`, string(env.Payload))

	data, err = marshalEnvelope(TypeGoodbye, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"goodbye"}`, string(data))
}
