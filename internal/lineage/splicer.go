package lineage

import (
	"context"
	"fmt"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
)

// Splicer replaces the tail of a displayed lineage with a freshly built one
type Splicer struct {
	builder *Builder
}

// NewSplicer creates a splicer on top of builder
func NewSplicer(builder *Builder) *Splicer {
	return &Splicer{builder: builder}
}

// Splice keeps current[:replaceAtDepth] as given and continues with the
// lineage built from replacementID, so the result is at most maxDepth long
// and its element at replaceAtDepth is the replacement itself. The
// replacement must be a version of current[replaceAtDepth].
func (s *Splicer) Splice(ctx context.Context, current []*models.ContentNode, replaceAtDepth int, replacementID string, maxDepth int) ([]*models.ContentNode, error) {
	if len(current) == 0 {
		return nil, content.Invalid("current_lineage", "must not be empty")
	}
	if replaceAtDepth < 0 || replaceAtDepth >= len(current) {
		return nil, content.Invalid("replace_at_depth", fmt.Sprintf("must be between 0 and %d", len(current)-1))
	}
	if err := s.builder.checkDepth(maxDepth); err != nil {
		return nil, err
	}
	if maxDepth-replaceAtDepth < 1 {
		return nil, content.Invalid("max_depth", "must be greater than replace_at_depth")
	}

	suffix, err := s.builder.Build(ctx, replacementID, maxDepth-replaceAtDepth)
	if err != nil {
		return nil, err
	}

	replaced := current[replaceAtDepth]
	if suffix[0].ParentIDValue() != replaced.ParentIDValue() {
		return nil, content.Invalid("replacement_node_id",
			fmt.Sprintf("%s is not a version of %s", replacementID, replaced.ID))
	}

	out := make([]*models.ContentNode, 0, replaceAtDepth+len(suffix))
	out = append(out, current[:replaceAtDepth]...)
	return append(out, suffix...), nil
}
