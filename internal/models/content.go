package models

import (
	"time"
)

// ContentNode represents an article (no parent) or a reply
type ContentNode struct {
	ID       string  `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Title    string  `gorm:"type:varchar(150);not null;default:'';column:title" json:"title,omitempty"`
	Text     string  `gorm:"type:text;not null;column:text" json:"text"`
	AuthorID string  `gorm:"type:varchar(64);not null;index;column:author_id" json:"author_id"`
	ParentID *string `gorm:"type:uuid;column:parent_id;index:idx_content_nodes_parent_likes,priority:1;index:idx_content_nodes_parent_created,priority:1" json:"parent_id,omitempty"`

	// Derived from content_likes / content_reports, written in the same transaction
	LikeCount    int64 `gorm:"not null;default:0;column:like_count;index:idx_content_nodes_parent_likes,priority:2,sort:desc" json:"like_count"`
	IsReported   bool  `gorm:"not null;default:false;column:is_reported" json:"is_reported"`
	ReportsCount int64 `gorm:"not null;default:0;column:reports_count" json:"reports_count"`

	CreatedAt time.Time `gorm:"not null;column:created_at;index:idx_content_nodes_parent_likes,priority:3;index:idx_content_nodes_parent_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for ContentNode
func (ContentNode) TableName() string {
	return "content_nodes"
}

// IsRoot reports whether the node is an article
func (n *ContentNode) IsRoot() bool {
	return n.ParentID == nil
}

// ParentIDValue returns the parent id or "" for articles
func (n *ContentNode) ParentIDValue() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// ContentLike is one user's like on a node
type ContentLike struct {
	NodeID    string    `gorm:"type:uuid;primaryKey;column:node_id"`
	UserID    string    `gorm:"type:varchar(64);primaryKey;column:user_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for ContentLike
func (ContentLike) TableName() string {
	return "content_likes"
}

// ContentReport is one user's report on a node
type ContentReport struct {
	NodeID     string    `gorm:"type:uuid;primaryKey;column:node_id" json:"node_id"`
	ReporterID string    `gorm:"type:varchar(64);primaryKey;column:reporter_id" json:"reporter_id"`
	Reason     string    `gorm:"type:varchar(500);not null;default:'';column:reason" json:"reason,omitempty"`
	ReportedAt time.Time `gorm:"not null;column:reported_at" json:"reported_at"`
}

// TableName specifies the table name for ContentReport
func (ContentReport) TableName() string {
	return "content_reports"
}
