package lineage

import (
	"context"

	"github.com/samber/lo"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
)

// Resolver lists the alternative replies ("versions") at a node's depth
type Resolver struct {
	store content.Reader
}

// NewResolver creates a resolver
func NewResolver(store content.Reader) *Resolver {
	return &Resolver{store: store}
}

// Versions returns the other children of nodeID's parent ranked like the
// Builder ranks them. Articles have no versions.
func (r *Resolver) Versions(ctx context.Context, nodeID string) ([]*models.ContentNode, error) {
	if err := content.CheckID("node_id", nodeID); err != nil {
		return nil, err
	}

	node, err := r.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.IsRoot() {
		return []*models.ContentNode{}, nil
	}

	siblings, err := r.store.ChildrenOf(ctx, *node.ParentID, content.OrderByLikes)
	if err != nil {
		return nil, err
	}
	return lo.Filter(siblings, func(n *models.ContentNode, _ int) bool {
		return n.ID != nodeID
	}), nil
}
