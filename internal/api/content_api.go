package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/branchwise/branchwise/internal/api/objects"
	"github.com/branchwise/branchwise/internal/content"
)

// ContentAPI provides content.* methods
type ContentAPI struct {
	service *content.Service
}

// NewContentAPI creates a new content API
func NewContentAPI(service *content.Service) *ContentAPI {
	return &ContentAPI{service: service}
}

type createParams struct {
	AuthorID string  `json:"author_id"`
	Text     string  `json:"text"`
	Title    string  `json:"title"`
	ParentID *string `json:"parent_id"`
}

type nodeParams struct {
	ID string `json:"id"`
}

type childrenParams struct {
	ParentID string `json:"parent_id"`
	Order    string `json:"order"`
}

type editParams struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	Text        string `json:"text"`
}

type engagementParams struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// Create handles content.create
func (a *ContentAPI) Create(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p createParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	in := content.CreateInput{AuthorID: p.AuthorID, Text: p.Text, Title: p.Title}
	if p.ParentID != nil {
		in.ParentID = *p.ParentID
	}
	node, err := a.service.Create(ctx.Request.Context(), in)
	if err != nil {
		return nil, err
	}
	return objects.NewNode(node), nil
}

// Get handles content.get
func (a *ContentAPI) Get(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p nodeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	node, err := a.service.Get(ctx.Request.Context(), p.ID)
	if err != nil {
		return nil, err
	}
	return objects.NewNode(node), nil
}

// Children handles content.children
func (a *ContentAPI) Children(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p childrenParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	order, err := content.ParseChildOrder(p.Order)
	if err != nil {
		return nil, err
	}
	nodes, err := a.service.Children(ctx.Request.Context(), p.ParentID, order)
	if err != nil {
		return nil, err
	}
	return objects.NewLineage(nodes), nil
}

// Edit handles content.edit
func (a *ContentAPI) Edit(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p editParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	node, err := a.service.UpdateText(ctx.Request.Context(), p.ID, p.RequesterID, p.Text)
	if err != nil {
		return nil, err
	}
	return objects.NewNode(node), nil
}

// ToggleLike handles content.toggle_like
func (a *ContentAPI) ToggleLike(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p engagementParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	res, err := a.service.ToggleLike(ctx.Request.Context(), p.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	return objects.NewLikeState(res), nil
}

// Report handles content.report
func (a *ContentAPI) Report(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p engagementParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	res, err := a.service.AddReport(ctx.Request.Context(), p.ID, p.UserID, p.Reason)
	if err != nil {
		return nil, err
	}
	return objects.NewReportState(res), nil
}

// Unreport handles content.unreport
func (a *ContentAPI) Unreport(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p engagementParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	res, err := a.service.RemoveReport(ctx.Request.Context(), p.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	return objects.NewReportState(res), nil
}

type cascadeParams struct {
	NodeID        string `json:"node_id"`
	RequesterRole string `json:"requester_role"`
}

// DeleteCascade handles admin.delete_cascade
func (a *ContentAPI) DeleteCascade(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p cascadeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	n, err := a.service.DeleteCascade(ctx.Request.Context(), p.NodeID, p.RequesterRole)
	if err != nil {
		return nil, err
	}
	return gin.H{"deleted_count": n}, nil
}
