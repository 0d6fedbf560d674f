// Package lineage selects and composes paths through reply trees.
//
// A lineage is an ordered root-to-leaf slice of nodes. The default lineage of
// a node follows the top-liked reply at every level (ties go to the oldest
// reply); versions are the other replies of the same parent, ranked the same
// way, and splicing swaps one of them into a displayed lineage. Nothing is
// cached: every call reads the current store state.
package lineage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
	"github.com/branchwise/branchwise/pkg/logging"
	"github.com/branchwise/branchwise/pkg/telemetry"
)

// Default traversal bounds
const (
	DefaultMaxDepth      = 10
	DefaultMaxDepthLimit = 50
)

// Builder walks the top-liked path below a node
type Builder struct {
	store      content.Reader
	depthLimit int
	logger     *zap.Logger
	lengths    metric.Int64Histogram
}

// NewBuilder creates a builder. depthLimit caps the maxDepth callers may ask
// for; values below 1 fall back to DefaultMaxDepthLimit.
func NewBuilder(store content.Reader, depthLimit int) *Builder {
	if depthLimit < 1 {
		depthLimit = DefaultMaxDepthLimit
	}
	b := &Builder{
		store:      store,
		depthLimit: depthLimit,
		logger:     logging.WithComponent("lineage"),
	}

	hist, err := telemetry.Meter().Int64Histogram("lineage.length",
		metric.WithDescription("Number of nodes in built lineages"))
	if err != nil {
		b.logger.Warn("Failed to create lineage histogram", zap.Error(err))
	}
	b.lengths = hist
	return b
}

// DepthLimit returns the largest accepted maxDepth
func (b *Builder) DepthLimit() int {
	return b.depthLimit
}

func (b *Builder) checkDepth(maxDepth int) error {
	if maxDepth < 1 || maxDepth > b.depthLimit {
		return content.Invalid("max_depth", fmt.Sprintf("must be between 1 and %d", b.depthLimit))
	}
	return nil
}

// Build returns the lineage starting at startID: the start node followed by
// the top-liked reply at each level, at most maxDepth nodes long.
func (b *Builder) Build(ctx context.Context, startID string, maxDepth int) ([]*models.ContentNode, error) {
	if err := content.CheckID("start_id", startID); err != nil {
		return nil, err
	}
	if err := b.checkDepth(maxDepth); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "lineage.build")
	defer span.End()

	current, err := b.store.GetNode(ctx, startID)
	if err != nil {
		return nil, err
	}

	path := make([]*models.ContentNode, 0, min(maxDepth, 16))
	path = append(path, current)
	// maxDepth is the hard bound on steps whatever the tree looks like
	for len(path) < maxDepth {
		children, err := b.store.ChildrenOf(ctx, current.ID, content.OrderByLikes)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			break
		}
		current = children[0]
		path = append(path, current)
	}

	span.SetAttributes(attribute.Int("lineage.length", len(path)))
	if b.lengths != nil {
		b.lengths.Record(ctx, int64(len(path)))
	}
	b.logger.Debug("Built lineage",
		zap.String("start_id", startID),
		zap.Int("max_depth", maxDepth),
		zap.Int("length", len(path)))
	return path, nil
}
