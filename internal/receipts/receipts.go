package receipts

import (
	"context"

	"github.com/anspn/iota-service/internal/models"
)

// Store defines the persistence interface for publication receipts.
type Store interface {
	Record(ctx context.Context, r *models.Receipt) error
	GetBySession(ctx context.Context, sessionID string) (*models.Receipt, error)
	List(ctx context.Context, limit int) ([]*models.Receipt, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
