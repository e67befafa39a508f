package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathchat/internal/assistant"
	"mathchat/internal/config"
	"mathchat/internal/database"
	"mathchat/internal/models"
	"mathchat/internal/websocket"
)

func newTestStack(t *testing.T, upstreamURL string) (*database.Database, *websocket.Hub, *Gateway) {
	t.Helper()

	db := &database.Database{}
	require.NoError(t, db.Connect("", filepath.Join(t.TempDir(), "test.db")))

	hub := websocket.NewHub(zerolog.Nop())
	gateway := NewGateway(db, hub, "assistant", zerolog.Nop())

	if upstreamURL != "" {
		upstream := assistant.NewClient(&config.Config{
			KBURL:            upstreamURL,
			KBName:           "math",
			KBModel:          "chatglm3-6b",
			KBTopK:           3,
			KBScoreThreshold: 0.85,
			KBTemperature:    0.3,
		})
		relay := assistant.NewRelay(upstream, gateway, 5*time.Second, 10, zerolog.Nop())
		gateway.AttachRelay(relay, assistant.Recognizer{Mention: "@assistant"})
	}
	return db, hub, gateway
}

func answerUpstream(answer string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"answer\": \"" + answer + "\"}\n\n"))
	}))
}

func roomScope(t *testing.T, db *database.Database, members ...string) models.Scope {
	t.Helper()

	room, err := db.CreateRoom(context.Background(), "algebra", members[0])
	require.NoError(t, err)
	for _, m := range members[1:] {
		require.NoError(t, db.JoinRoom(context.Background(), m, room.ID))
	}
	return models.Scope{Type: models.ScopeRoom, ID: room.ID}
}

func TestPostCommitsAndBroadcasts(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")
	scope := roomScope(t, db, "alice", "bob")

	clientA := websocket.NewClient(hub, nil, "alice", scope)
	clientB := websocket.NewClient(hub, nil, "bob", scope)
	hub.Register(clientA)
	hub.Register(clientB)

	msg, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Seq)

	// оба живых канала продвинули курсор на разосланный seq
	assert.Equal(t, uint64(1), clientA.LastSeq())
	assert.Equal(t, uint64(1), clientB.LastSeq())
}

func TestPostInterleavedSendersSeeOneOrder(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")
	scope := roomScope(t, db, "alice", "bob")

	clientA := websocket.NewClient(hub, nil, "alice", scope)
	hub.Register(clientA)

	_, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, "from alice", "")
	require.NoError(t, err)
	_, err = gateway.Post(context.Background(), scope, "bob", models.RoleUser, "from bob", "")
	require.NoError(t, err)

	msgs, err := db.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "from alice", msgs[0].Content)
	assert.Equal(t, "from bob", msgs[1].Content)
	assert.Equal(t, uint64(2), clientA.LastSeq())
}

// dialClient поднимает настоящий сокет поверх hub: кадры читаются с той
// стороны провода, в том порядке, в котором их увидит браузерный клиент.
func dialClient(t *testing.T, hub *websocket.Hub, scope models.Scope, username string) *gorillaws.Conn {
	t.Helper()

	upgrader := gorillaws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := websocket.NewClient(hub, conn, username, scope)
		hub.Register(c)
		go c.WritePump()
		close(registered)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	<-registered
	return conn
}

func TestConcurrentPostsPreserveWireOrder(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")
	scope := roomScope(t, db, "alice")

	conn := dialClient(t, hub, scope, "alice")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, fmt.Sprintf("msg %d", i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var last uint64
	for i := 0; i < n; i++ {
		var frame websocket.OutboundFrame
		require.NoError(t, conn.ReadJSON(&frame))
		require.Equal(t, websocket.FrameMessage, frame.Type)
		assert.Greater(t, frame.Seq, last, "frames on the wire must follow seq order")
		last = frame.Seq
	}
	assert.Equal(t, uint64(n), last)
}

func TestPostDuplicateTokenNoSideEffects(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")
	scope := roomScope(t, db, "alice")

	client := websocket.NewClient(hub, nil, "alice", scope)
	hub.Register(client)

	first, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, "hello", "tok-1")
	require.NoError(t, err)
	second, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, "hello", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, uint64(1), client.LastSeq())

	msgs, err := db.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRoomMentionTriggersAssistant(t *testing.T) {
	ts := answerUpstream("x = 2")
	defer ts.Close()

	db, _, gateway := newTestStack(t, ts.URL)
	scope := roomScope(t, db, "alice")

	_, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, "@assistant solve x+1=3", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs, err := db.ReadAll(context.Background(), scope)
		return err == nil && len(msgs) == 2
	}, 3*time.Second, 20*time.Millisecond)

	msgs, err := db.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "assistant", msgs[1].Author)
	assert.Equal(t, "x = 2", msgs[1].Content)
	assert.Equal(t, uint64(2), msgs[1].Seq)
}

func TestRoomPlainMessageDoesNotTrigger(t *testing.T) {
	ts := answerUpstream("should not appear")
	defer ts.Close()

	db, _, gateway := newTestStack(t, ts.URL)
	scope := roomScope(t, db, "alice")

	_, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, "just chatting", "")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	msgs, err := db.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestConversationAlwaysTriggersAssistant(t *testing.T) {
	ts := answerUpstream("4")
	defer ts.Close()

	db, _, gateway := newTestStack(t, ts.URL)
	conv, err := db.CreateConversation(context.Background(), "alice", "")
	require.NoError(t, err)
	scope := models.Scope{Type: models.ScopeConversation, ID: conv.ID}

	_, err = gateway.Post(context.Background(), scope, "alice", models.RoleUser, "what is 2+2", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs, err := db.ReadAll(context.Background(), scope)
		return err == nil && len(msgs) == 2
	}, 3*time.Second, 20*time.Millisecond)

	msgs, err := db.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, "4", msgs[1].Content)
}

func TestAssistantAnswerDoesNotRetrigger(t *testing.T) {
	ts := answerUpstream("@assistant loops are fun")
	defer ts.Close()

	db, _, gateway := newTestStack(t, ts.URL)
	conv, err := db.CreateConversation(context.Background(), "alice", "")
	require.NoError(t, err)
	scope := models.Scope{Type: models.ScopeConversation, ID: conv.ID}

	_, err = gateway.Post(context.Background(), scope, "alice", models.RoleUser, "question", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs, err := db.ReadAll(context.Background(), scope)
		return err == nil && len(msgs) == 2
	}, 3*time.Second, 20*time.Millisecond)

	// ответ ассистента с маркером в тексте не порождает новый запрос
	time.Sleep(200 * time.Millisecond)
	msgs, err := db.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestHandleMessageRejectsEmptyContent(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")
	scope := roomScope(t, db, "alice")

	client := websocket.NewClient(hub, nil, "alice", scope)
	hub.Register(client)

	err := gateway.HandleMessage(context.Background(), client, websocket.InboundFrame{Content: "   "})
	assert.ErrorIs(t, err, websocket.ErrInvalidFrame)
}

func TestSocketErrorsAreClientSafe(t *testing.T) {
	assert.Equal(t, database.ErrScopeNotFound, clientError(database.ErrScopeNotFound))
	assert.Equal(t, websocket.ErrInvalidFrame, clientError(websocket.ErrInvalidFrame))

	raw := errors.New(`ERROR: duplicate key value violates unique constraint "uk_scope_seq" (SQLSTATE 23505)`)
	sanitized := clientError(raw)
	assert.Equal(t, errCommitFailed, sanitized)
	assert.NotContains(t, sanitized.Error(), "SQLSTATE")
}

func TestHandleMessageDeletedScopeError(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")

	conv, err := db.CreateConversation(context.Background(), "alice", "")
	require.NoError(t, err)
	scope := models.Scope{Type: models.ScopeConversation, ID: conv.ID}

	client := websocket.NewClient(hub, nil, "alice", scope)
	hub.Register(client)

	require.NoError(t, db.DeleteConversation(context.Background(), "alice", conv.ID))

	err = gateway.HandleMessage(context.Background(), client, websocket.InboundFrame{Content: "late"})
	assert.ErrorIs(t, err, database.ErrScopeNotFound)
}

func TestHandleSyncDeliversMissedTail(t *testing.T) {
	db, hub, gateway := newTestStack(t, "")
	scope := roomScope(t, db, "alice")

	for _, text := range []string{"one", "two", "three"} {
		_, err := gateway.Post(context.Background(), scope, "alice", models.RoleUser, text, "")
		require.NoError(t, err)
	}

	// клиент подключился после первых двух сообщений
	client := websocket.NewClient(hub, nil, "alice", scope)
	hub.Register(client)

	require.NoError(t, gateway.HandleSync(context.Background(), client, 2))
	assert.Equal(t, uint64(3), client.LastSeq())
}
