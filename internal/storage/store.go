package storage

import (
	"context"

	"agon/internal/model"
)

// Store defines persistence for finished and in-progress session results.
type Store interface {
	Init(ctx context.Context) error
	SaveSession(ctx context.Context, record model.SessionRecord) error
	GetSession(ctx context.Context, id string) (model.SessionRecord, bool, error)
	ListSessions(ctx context.Context) ([]model.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	SaveGenerationHistory(ctx context.Context, sessionID string, history []model.GenerationRecord) error
	GetGenerationHistory(ctx context.Context, sessionID string) ([]model.GenerationRecord, bool, error)
}
