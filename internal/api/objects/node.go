package objects

import (
	"time"

	"github.com/samber/lo"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
)

// Node is the full wire shape of a content node
type Node struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Text       string  `json:"text"`
	AuthorID   string  `json:"author_id"`
	ParentID   *string `json:"parent_id,omitempty"`
	LikeCount  int64   `json:"like_count"`
	IsReported bool    `json:"is_reported"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// LineageEntry is one node of a lineage or version list
type LineageEntry struct {
	ID        string  `json:"id"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text"`
	AuthorID  string  `json:"author_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	LikeCount int64   `json:"like_count"`
	CreatedAt string  `json:"created_at"`
}

// LikeState is the result of a like toggle
type LikeState struct {
	ID          string `json:"id"`
	LikeCount   int64  `json:"like_count"`
	LikedByUser bool   `json:"liked_by_user"`
}

// ReportState is the result of a report or unreport
type ReportState struct {
	ID             string `json:"id"`
	IsReported     bool   `json:"is_reported"`
	ReportedByUser bool   `json:"reported_by_user"`
	ReportsCount   int64  `json:"reports_count"`
}

// SavedLineage is a user's stored favorite path
type SavedLineage struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	NodeIDs   []string `json:"node_ids"`
	CreatedAt string   `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NewNode builds the wire node
func NewNode(n *models.ContentNode) Node {
	return Node{
		ID:         n.ID,
		Title:      n.Title,
		Text:       n.Text,
		AuthorID:   n.AuthorID,
		ParentID:   n.ParentID,
		LikeCount:  n.LikeCount,
		IsReported: n.IsReported,
		CreatedAt:  formatTime(n.CreatedAt),
		UpdatedAt:  formatTime(n.UpdatedAt),
	}
}

// NewLineage builds lineage entries preserving order; never nil
func NewLineage(nodes []*models.ContentNode) []LineageEntry {
	return lo.Map(nodes, func(n *models.ContentNode, _ int) LineageEntry {
		return LineageEntry{
			ID:        n.ID,
			Title:     n.Title,
			Text:      n.Text,
			AuthorID:  n.AuthorID,
			ParentID:  n.ParentID,
			LikeCount: n.LikeCount,
			CreatedAt: formatTime(n.CreatedAt),
		}
	})
}

// NewLikeState builds the toggle result
func NewLikeState(r content.LikeResult) LikeState {
	return LikeState{ID: r.NodeID, LikeCount: r.LikeCount, LikedByUser: r.LikedByUser}
}

// NewReportState builds the report result
func NewReportState(r content.ReportResult) ReportState {
	return ReportState{
		ID:             r.NodeID,
		IsReported:     r.IsReported,
		ReportedByUser: r.ReportedByUser,
		ReportsCount:   r.ReportsCount,
	}
}

// NewSavedLineage builds the wire form of a saved lineage
func NewSavedLineage(s *models.SavedLineage) SavedLineage {
	return SavedLineage{
		ID:        s.ID,
		UserID:    s.UserID,
		NodeIDs:   s.NodeIDs(),
		CreatedAt: formatTime(s.CreatedAt),
	}
}

// NewSavedLineages builds wire saved lineages; never nil
func NewSavedLineages(saved []*models.SavedLineage) []SavedLineage {
	return lo.Map(saved, func(s *models.SavedLineage, _ int) SavedLineage {
		return NewSavedLineage(s)
	})
}
