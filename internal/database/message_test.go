package database

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathchat/internal/models"
)

func TestAppendMessageAssignsContiguousSeq(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	for i := 1; i <= 5; i++ {
		msg, created, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, fmt.Sprintf("msg %d", i), nil)
		require.NoError(t, err)
		require.True(t, created)
		assert.Equal(t, uint64(i), msg.Seq)
	}
}

func TestAppendMessageConcurrentWritersStayContiguous(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, fmt.Sprintf("msg %d", n), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := d.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, msgs, writers)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Seq, "seq sequence must have no gaps and no duplicates")
	}
}

func TestAppendMessageSeqIsPerScope(t *testing.T) {
	d := newTestDB(t)
	scopeA := newTestConversation(t, d, "alice")
	scopeB := newTestConversation(t, d, "bob")

	msgA, _, err := d.AppendMessage(context.Background(), scopeA, "alice", models.RoleUser, "hi", nil)
	require.NoError(t, err)
	msgB, _, err := d.AppendMessage(context.Background(), scopeB, "bob", models.RoleUser, "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), msgA.Seq)
	assert.Equal(t, uint64(1), msgB.Seq, "each scope keeps its own counter")
}

func TestAppendMessageClientTokenDedupe(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	token := "retry-123"
	first, created, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, "question", &token)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, "question", &token)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Seq, second.Seq)

	msgs, err := d.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "a duplicate submission must not grow the history")
}

func TestAppendMessageSameTokenDifferentScopes(t *testing.T) {
	d := newTestDB(t)
	scopeA := newTestConversation(t, d, "alice")
	scopeB := newTestConversation(t, d, "alice")

	token := "retry-123"
	_, created, err := d.AppendMessage(context.Background(), scopeA, "alice", models.RoleUser, "one", &token)
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = d.AppendMessage(context.Background(), scopeB, "alice", models.RoleUser, "two", &token)
	require.NoError(t, err)
	assert.True(t, created, "token uniqueness is scoped to one journal")
}

func TestAppendMessageUnknownScope(t *testing.T) {
	d := newTestDB(t)
	scope := models.Scope{Type: models.ScopeConversation, ID: uuid.New()}

	_, _, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, "hi", nil)
	assert.ErrorIs(t, err, ErrScopeNotFound)
}

func TestReadSinceCursor(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	for i := 1; i <= 7; i++ {
		_, _, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, fmt.Sprintf("msg %d", i), nil)
		require.NoError(t, err)
	}

	msgs, err := d.ReadSince(context.Background(), scope, 5, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(6), msgs[0].Seq)
	assert.Equal(t, uint64(7), msgs[1].Seq)

	limited, err := d.ReadSince(context.Background(), scope, 0, 3)
	require.NoError(t, err)
	require.Len(t, limited, 3)
	assert.Equal(t, uint64(1), limited[0].Seq)

	empty, err := d.ReadSince(context.Background(), scope, 7, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReadRecentFiltersRoleAndKeepsOrder(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	for i := 1; i <= 4; i++ {
		_, _, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, fmt.Sprintf("q%d", i), nil)
		require.NoError(t, err)
		_, _, err = d.AppendMessage(context.Background(), scope, "assistant", models.RoleAssistant, fmt.Sprintf("a%d", i), nil)
		require.NoError(t, err)
	}

	window, err := d.ReadRecent(context.Background(), scope, models.RoleUser, 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "q2", window[0].Content)
	assert.Equal(t, "q3", window[1].Content)
	assert.Equal(t, "q4", window[2].Content)
	for _, m := range window {
		assert.Equal(t, models.RoleUser, m.Role)
	}
}

func TestLastSeq(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	seq, err := d.LastSeq(context.Background(), scope)
	require.NoError(t, err)
	assert.Zero(t, seq)

	_, _, err = d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, "hi", nil)
	require.NoError(t, err)

	seq, err = d.LastSeq(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}
