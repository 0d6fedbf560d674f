package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/branchwise/branchwise/internal/api/objects"
	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/lineage"
)

// LineageAPI provides lineage.* methods
type LineageAPI struct {
	store        content.Reader
	builder      *lineage.Builder
	resolver     *lineage.Resolver
	splicer      *lineage.Splicer
	favorites    *lineage.Favorites
	defaultDepth int
}

// NewLineageAPI creates a new lineage API. defaultDepth applies when a
// request omits max_depth.
func NewLineageAPI(store content.Store, defaultDepth, depthLimit int) *LineageAPI {
	if defaultDepth < 1 {
		defaultDepth = lineage.DefaultMaxDepth
	}
	builder := lineage.NewBuilder(store, depthLimit)
	return &LineageAPI{
		store:        store,
		builder:      builder,
		resolver:     lineage.NewResolver(store),
		splicer:      lineage.NewSplicer(builder),
		favorites:    lineage.NewFavorites(store, builder.DepthLimit()),
		defaultDepth: defaultDepth,
	}
}

type lineageParams struct {
	StartID  string `json:"start_id"`
	MaxDepth *int   `json:"max_depth"`
}

type versionsParams struct {
	NodeID string `json:"node_id"`
}

type spliceParams struct {
	CurrentLineage    []string `json:"current_lineage"`
	ReplaceAtDepth    *int     `json:"replace_at_depth"`
	ReplacementNodeID string   `json:"replacement_node_id"`
	MaxDepth          *int     `json:"max_depth"`
}

type saveParams struct {
	UserID  string   `json:"user_id"`
	NodeIDs []string `json:"node_ids"`
}

type savedParams struct {
	UserID string `json:"user_id"`
	ID     string `json:"id"`
}

// Get handles lineage.get
func (a *LineageAPI) Get(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p lineageParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	nodes, err := a.builder.Build(ctx.Request.Context(), p.StartID, depthOrDefault(p.MaxDepth, a.defaultDepth))
	if err != nil {
		return nil, err
	}
	return objects.NewLineage(nodes), nil
}

// Versions handles lineage.versions
func (a *LineageAPI) Versions(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p versionsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	nodes, err := a.resolver.Versions(ctx.Request.Context(), p.NodeID)
	if err != nil {
		return nil, err
	}
	return objects.NewLineage(nodes), nil
}

// Splice handles lineage.splice
func (a *LineageAPI) Splice(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p spliceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ReplaceAtDepth == nil {
		return nil, content.Invalid("replace_at_depth", "required")
	}
	if len(p.CurrentLineage) == 0 {
		return nil, content.Invalid("current_lineage", "must not be empty")
	}
	for _, id := range p.CurrentLineage {
		if err := content.CheckID("current_lineage", id); err != nil {
			return nil, err
		}
	}

	current, err := a.store.GetNodes(ctx.Request.Context(), p.CurrentLineage)
	if err != nil {
		return nil, err
	}
	nodes, err := a.splicer.Splice(ctx.Request.Context(), current, *p.ReplaceAtDepth,
		p.ReplacementNodeID, depthOrDefault(p.MaxDepth, a.defaultDepth))
	if err != nil {
		return nil, err
	}
	return objects.NewLineage(nodes), nil
}

// Save handles lineage.save
func (a *LineageAPI) Save(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p saveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	saved, err := a.favorites.Save(ctx.Request.Context(), p.UserID, p.NodeIDs)
	if err != nil {
		return nil, err
	}
	return objects.NewSavedLineage(saved), nil
}

// ListSaved handles lineage.list_saved
func (a *LineageAPI) ListSaved(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p savedParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	saved, err := a.favorites.List(ctx.Request.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	return objects.NewSavedLineages(saved), nil
}

// DeleteSaved handles lineage.delete_saved
func (a *LineageAPI) DeleteSaved(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p savedParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	if err := a.favorites.Delete(ctx.Request.Context(), p.UserID, p.ID); err != nil {
		return nil, err
	}
	return gin.H{"deleted": true}, nil
}
