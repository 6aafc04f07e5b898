package storage

import (
	"context"

	"github.com/xaenox/herald-bot/internal/models"
)

// AdminStore is the durable document collection backing the admin directory.
// Documents are keyed by the string form of the admin's user ID.
type AdminStore interface {
	// ListAdmins returns every document in the collection.
	ListAdmins(ctx context.Context) ([]models.AdminDocument, error)
	// ReplaceAdmins overwrites the whole collection with docs.
	ReplaceAdmins(ctx context.Context, docs []models.AdminDocument) error
	Close() error
}
