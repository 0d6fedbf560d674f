package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
	"github.com/branchwise/branchwise/pkg/logging"
)

// Favorites stores lineages users chose to keep
type Favorites struct {
	store    content.Store
	maxNodes int
	now      func() time.Time
	logger   *zap.Logger
}

// NewFavorites creates the saved-lineage service. maxNodes bounds the length
// of a saved path.
func NewFavorites(store content.Store, maxNodes int) *Favorites {
	if maxNodes < 1 {
		maxNodes = DefaultMaxDepthLimit
	}
	return &Favorites{
		store:    store,
		maxNodes: maxNodes,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logging.WithComponent("favorites"),
	}
}

// Save keeps nodeIDs as one of userID's favorites. The ids must form a path
// that starts at an article and descends one reply at a time.
func (f *Favorites) Save(ctx context.Context, userID string, nodeIDs []string) (*models.SavedLineage, error) {
	if err := content.CheckUserID("user_id", userID); err != nil {
		return nil, err
	}
	if len(nodeIDs) == 0 {
		return nil, content.Invalid("node_ids", "must not be empty")
	}
	if len(nodeIDs) > f.maxNodes {
		return nil, content.Invalid("node_ids", fmt.Sprintf("must have at most %d entries", f.maxNodes))
	}
	for _, id := range nodeIDs {
		if err := content.CheckID("node_ids", id); err != nil {
			return nil, err
		}
	}
	if len(lo.Uniq(nodeIDs)) != len(nodeIDs) {
		return nil, content.Invalid("node_ids", "must not repeat a node")
	}

	nodes, err := f.store.GetNodes(ctx, nodeIDs)
	if err != nil {
		return nil, err
	}
	if !nodes[0].IsRoot() {
		return nil, content.Invalid("node_ids", "must start at an article")
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i].ParentIDValue() != nodes[i-1].ID {
			return nil, content.Invalid("node_ids", fmt.Sprintf("%s is not a reply to %s", nodes[i].ID, nodes[i-1].ID))
		}
	}

	saved := &models.SavedLineage{
		ID:        uuid.NewString(),
		UserID:    userID,
		PathKey:   models.PathKey(nodeIDs),
		NodePath:  models.JoinNodePath(nodeIDs),
		CreatedAt: f.now(),
	}
	if err := f.store.SaveLineage(ctx, saved); err != nil {
		return nil, err
	}

	f.logger.Debug("Saved lineage",
		zap.String("user_id", userID),
		zap.String("id", saved.ID),
		zap.Int("length", len(nodeIDs)))
	return saved, nil
}

// List returns userID's saved lineages, newest first
func (f *Favorites) List(ctx context.Context, userID string) ([]*models.SavedLineage, error) {
	if err := content.CheckUserID("user_id", userID); err != nil {
		return nil, err
	}
	return f.store.ListLineages(ctx, userID)
}

// Delete removes one saved lineage owned by userID
func (f *Favorites) Delete(ctx context.Context, userID, id string) error {
	if err := content.CheckUserID("user_id", userID); err != nil {
		return err
	}
	if err := content.CheckID("id", id); err != nil {
		return err
	}
	return f.store.DeleteLineage(ctx, userID, id)
}
