package content

import (
	"context"
	"sort"
	"time"

	"github.com/branchwise/branchwise/internal/models"
)

// ChildOrder selects how ChildrenOf sorts direct replies
type ChildOrder int

const (
	// OrderByLikes sorts by like count desc, then oldest first
	OrderByLikes ChildOrder = iota
	// OrderByCreation sorts oldest first
	OrderByCreation
)

// String returns the wire name of the order
func (o ChildOrder) String() string {
	if o == OrderByCreation {
		return "created"
	}
	return "likes"
}

// ParseChildOrder maps a wire name to a ChildOrder; "" means OrderByLikes
func ParseChildOrder(s string) (ChildOrder, error) {
	switch s {
	case "", "likes":
		return OrderByLikes, nil
	case "created":
		return OrderByCreation, nil
	}
	return OrderByLikes, Invalid("order", `must be "likes" or "created"`)
}

// LikeResult is the state of a node's likes after a toggle
type LikeResult struct {
	NodeID      string
	LikeCount   int64
	LikedByUser bool
}

// ReportResult is the state of a node's reports after a change
type ReportResult struct {
	NodeID         string
	IsReported     bool
	ReportedByUser bool
	ReportsCount   int64
}

// Reader is the read side of the store used by lineage traversal
type Reader interface {
	GetNode(ctx context.Context, id string) (*models.ContentNode, error)
	GetNodes(ctx context.Context, ids []string) ([]*models.ContentNode, error)
	// ChildrenOf returns a NotFoundError when parentID itself is missing
	ChildrenOf(ctx context.Context, parentID string, order ChildOrder) ([]*models.ContentNode, error)
}

// Store is the persistent ContentNode store. Engagement operations are atomic
// per node: the set change and the derived counters commit together.
type Store interface {
	Reader

	// CreateNode fails with a NotFoundError when the parent does not exist
	CreateNode(ctx context.Context, node *models.ContentNode) error
	UpdateText(ctx context.Context, id, text string, at time.Time) (*models.ContentNode, error)

	ToggleLike(ctx context.Context, nodeID, userID string, at time.Time) (LikeResult, error)
	// AddReport fails with a ConflictError when the user already reported the node
	AddReport(ctx context.Context, report *models.ContentReport) (ReportResult, error)
	// RemoveReport fails with a NotFoundError when the user has no report on the node
	RemoveReport(ctx context.Context, nodeID, userID string) (ReportResult, error)

	// DeleteCascade removes the node and every descendant. A store may split a
	// large subtree into several units of work, deepest replies first, and
	// then returns the count already removed alongside any error.
	// Missing nodes delete nothing and return 0.
	DeleteCascade(ctx context.Context, id string) (int, error)

	// SaveLineage fails with a ConflictError when the user saved the same path
	SaveLineage(ctx context.Context, saved *models.SavedLineage) error
	ListLineages(ctx context.Context, userID string) ([]*models.SavedLineage, error)
	DeleteLineage(ctx context.Context, userID, id string) error

	Health(ctx context.Context) error
	Close() error
}

// SortChildren orders nodes in place. Stores that cannot sort on the storage
// side use it so every backend agrees on ties.
func SortChildren(nodes []*models.ContentNode, order ChildOrder) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if order == OrderByLikes && a.LikeCount != b.LikeCount {
			return a.LikeCount > b.LikeCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
