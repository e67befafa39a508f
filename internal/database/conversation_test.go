package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathchat/internal/models"
)

func TestCreateConversationDefaultTitle(t *testing.T) {
	d := newTestDB(t)

	conv, err := d.CreateConversation(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Contains(t, conv.Title, "chat-")

	named, err := d.CreateConversation(context.Background(), "alice", "homework")
	require.NoError(t, err)
	assert.Equal(t, "homework", named.Title)
}

func TestGetConversationOwnerOnly(t *testing.T) {
	d := newTestDB(t)

	conv, err := d.CreateConversation(context.Background(), "alice", "private")
	require.NoError(t, err)

	_, err = d.GetConversation(context.Background(), "alice", conv.ID)
	require.NoError(t, err)

	_, err = d.GetConversation(context.Background(), "bob", conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDeleteConversationRemovesHistory(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	_, _, err := d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, "hi", nil)
	require.NoError(t, err)

	require.NoError(t, d.DeleteConversation(context.Background(), "alice", scope.ID))

	msgs, err := d.ReadAll(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, _, err = d.AppendMessage(context.Background(), scope, "alice", models.RoleUser, "late", nil)
	assert.ErrorIs(t, err, ErrScopeNotFound, "a deleted journal must not accept writes")
}

func TestDeleteConversationWrongOwner(t *testing.T) {
	d := newTestDB(t)
	scope := newTestConversation(t, d, "alice")

	err := d.DeleteConversation(context.Background(), "bob", scope.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDeleteConversationUnknown(t *testing.T) {
	d := newTestDB(t)

	err := d.DeleteConversation(context.Background(), "alice", uuid.New())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestListConversationsFor(t *testing.T) {
	d := newTestDB(t)

	_, err := d.CreateConversation(context.Background(), "alice", "one")
	require.NoError(t, err)
	_, err = d.CreateConversation(context.Background(), "bob", "other")
	require.NoError(t, err)

	convs, err := d.ListConversationsFor(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "one", convs[0].Title)
}
