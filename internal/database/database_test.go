package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mathchat/internal/models"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	d := &Database{}
	err := d.Connect("", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return d
}

func newTestConversation(t *testing.T, d *Database, owner string) models.Scope {
	t.Helper()

	conv, err := d.CreateConversation(context.Background(), owner, "")
	require.NoError(t, err)
	return models.Scope{Type: models.ScopeConversation, ID: conv.ID}
}

func newTestRoom(t *testing.T, d *Database, creator string) (*models.Room, models.Scope) {
	t.Helper()

	room, err := d.CreateRoom(context.Background(), "algebra", creator)
	require.NoError(t, err)
	return room, models.Scope{Type: models.ScopeRoom, ID: room.ID}
}
