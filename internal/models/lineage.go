package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// SavedLineage is a path through a reply tree a user kept as a favorite
type SavedLineage struct {
	ID      string `gorm:"type:uuid;primaryKey;column:id"`
	UserID  string `gorm:"type:varchar(64);not null;uniqueIndex:saved_lineages_ux1,priority:1;column:user_id"`
	PathKey string `gorm:"type:char(32);not null;uniqueIndex:saved_lineages_ux1,priority:2;column:path_key"`
	// Comma separated node ids, root first
	NodePath  string    `gorm:"type:text;not null;column:node_path"`
	CreatedAt time.Time `gorm:"not null;index;column:created_at"`
}

// TableName specifies the table name for SavedLineage
func (SavedLineage) TableName() string {
	return "saved_lineages"
}

// NodeIDs splits NodePath back into ids
func (s *SavedLineage) NodeIDs() []string {
	if s.NodePath == "" {
		return nil
	}
	return strings.Split(s.NodePath, ",")
}

// JoinNodePath is the inverse of NodeIDs
func JoinNodePath(ids []string) string {
	return strings.Join(ids, ",")
}

// PathKey identifies an ordered node path; two saves of the same path share it
func PathKey(ids []string) string {
	sum := md5.Sum([]byte(JoinNodePath(ids)))
	return hex.EncodeToString(sum[:])
}
