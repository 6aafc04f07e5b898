// Package directory keeps the in-memory admin set in sync with the durable
// admin document collection.
package directory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/xaenox/herald-bot/internal/models"
	"github.com/xaenox/herald-bot/internal/state"
	"github.com/xaenox/herald-bot/internal/storage"
	"go.uber.org/zap"
)

type Directory struct {
	// mu serializes admin mutations with their saves and with loads.
	mu     sync.Mutex
	store  storage.AdminStore
	state  *state.Store
	seed   []int64
	logger *zap.Logger
}

// New creates a directory. Seed admins bootstrap an empty store on Load.
func New(store storage.AdminStore, st *state.Store, seed []int64, logger *zap.Logger) *Directory {
	return &Directory{
		store:  store,
		state:  st,
		seed:   seed,
		logger: logger,
	}
}

// Load replaces the admin set with the admins found in the store. A store
// failure leaves the set empty; it is logged and not returned so the bot keeps
// running. When the store holds no admins the seed admins are added and
// persisted, so later loads see only what the store says.
func (d *Directory) Load(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs, err := d.store.ListAdmins(ctx)
	if err != nil {
		d.logger.Error("Failed to load admins, continuing with empty directory", zap.Error(err))
		d.state.ReplaceAdmins(nil)
		return
	}

	ids := make([]int64, 0, len(docs))
	for _, doc := range docs {
		if doc.Role != models.RoleAdmin {
			continue
		}
		id, err := strconv.ParseInt(doc.ID, 10, 64)
		if err != nil {
			d.logger.Warn("Skipping invalid admin ID", zap.String("document_id", doc.ID))
			continue
		}
		ids = append(ids, id)
	}
	d.state.ReplaceAdmins(ids)

	if len(ids) == 0 && len(d.seed) > 0 {
		d.state.ReplaceAdmins(d.seed)
		d.logger.Info("Bootstrapping empty admin directory from seed", zap.Int64s("admin_ids", d.seed))
		// save logs its own failure; the seed stays in memory either way.
		_ = d.save(ctx)
	}

	d.logger.Info("Loaded admins", zap.Int64s("admin_ids", d.state.Admins()))
}

// Save overwrites the store with the current admin set.
func (d *Directory) Save(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.save(ctx)
}

func (d *Directory) save(ctx context.Context) error {
	ids := d.state.Admins()
	docs := make([]models.AdminDocument, len(ids))
	for i, id := range ids {
		docs[i] = models.AdminDocument{ID: strconv.FormatInt(id, 10), Role: models.RoleAdmin}
	}

	if err := d.store.ReplaceAdmins(ctx, docs); err != nil {
		d.logger.Error("Failed to save admins",
			zap.Error(err),
			zap.Int64s("admin_ids", ids))
		return fmt.Errorf("save admins: %w", err)
	}

	d.logger.Info("Saved admins", zap.Int64s("admin_ids", ids))
	return nil
}

// Add inserts id and persists the set. added is false when id was already an
// admin, in which case nothing is written. A save failure is returned but the
// in-memory insert is kept.
func (d *Directory) Add(ctx context.Context, id int64) (added bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.AddAdmin(id) {
		return false, nil
	}
	return true, d.save(ctx)
}

// Remove deletes id and persists the set. removed is false when id was not an
// admin. A save failure is returned but the in-memory removal is kept.
func (d *Directory) Remove(ctx context.Context, id int64) (removed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.state.RemoveAdmin(id) {
		return false, nil
	}
	return true, d.save(ctx)
}
