package database

import "errors"

var (
	// ErrScopeNotFound — запись или чтение по несуществующему (или уже
	// удалённому) журналу. Не ретраится, отдаётся вызывающему.
	ErrScopeNotFound = errors.New("scope not found")

	ErrRoomNotFound         = errors.New("room not found")
	ErrConversationNotFound = errors.New("conversation not found")
)
