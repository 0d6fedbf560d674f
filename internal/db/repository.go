package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
)

// Repository is the postgres-backed content.Store. Likes and reports are rows
// of their own; the counters on content_nodes are rewritten in the same
// transaction while the node row is locked.
type Repository struct {
	database *DB
	db       *gorm.DB
}

var _ content.Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(database *DB) *Repository {
	return &Repository{
		database: database,
		db:       database.DB.Session(&gorm.Session{TranslateError: true}),
	}
}

// Health checks database health
func (r *Repository) Health(ctx context.Context) error {
	return r.database.Health(ctx)
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.database.Close()
}

func orderClause(order content.ChildOrder) string {
	if order == content.OrderByCreation {
		return "created_at ASC, id ASC"
	}
	return "like_count DESC, created_at ASC, id ASC"
}

// lockNode selects the node row with the given lock strength
func lockNode(tx *gorm.DB, id, strength string) (*models.ContentNode, error) {
	var node models.ContentNode
	err := tx.Clauses(clause.Locking{Strength: strength}).
		Where("id = ?", id).
		Take(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, content.NodeNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// CreateNode inserts a node. The parent row is share-locked so a concurrent
// cascade delete either sees the new child or runs first and fails this insert.
func (r *Repository) CreateNode(ctx context.Context, node *models.ContentNode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if node.ParentID != nil {
			if _, err := lockNode(tx, *node.ParentID, "SHARE"); err != nil {
				return err
			}
		}
		return tx.Create(node).Error
	})
}

// GetNode retrieves a node by ID
func (r *Repository) GetNode(ctx context.Context, id string) (*models.ContentNode, error) {
	var node models.ContentNode
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, content.NodeNotFound(id)
		}
		return nil, err
	}
	return &node, nil
}

// GetNodes retrieves nodes in the order of ids with one query
func (r *Repository) GetNodes(ctx context.Context, ids []string) ([]*models.ContentNode, error) {
	if len(ids) == 0 {
		return []*models.ContentNode{}, nil
	}

	var rows []*models.ContentNode
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}

	byID := make(map[string]*models.ContentNode, len(rows))
	for _, n := range rows {
		byID[n.ID] = n
	}
	nodes := make([]*models.ContentNode, 0, len(ids))
	for _, id := range ids {
		n, ok := byID[id]
		if !ok {
			return nil, content.NodeNotFound(id)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ChildrenOf lists direct replies using the (parent_id, like_count, created_at)
// or (parent_id, created_at) index
func (r *Repository) ChildrenOf(ctx context.Context, parentID string, order content.ChildOrder) ([]*models.ContentNode, error) {
	db := r.db.WithContext(ctx)

	var exists int64
	if err := db.Model(&models.ContentNode{}).Where("id = ?", parentID).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, content.NodeNotFound(parentID)
	}

	var children []*models.ContentNode
	if err := db.Where("parent_id = ?", parentID).
		Order(orderClause(order)).
		Find(&children).Error; err != nil {
		return nil, fmt.Errorf("failed to load children of %s: %w", parentID, err)
	}
	return children, nil
}

// UpdateText replaces the text and bumps updated_at
func (r *Repository) UpdateText(ctx context.Context, id, text string, at time.Time) (*models.ContentNode, error) {
	var node *models.ContentNode
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		node, err = lockNode(tx, id, "UPDATE")
		if err != nil {
			return err
		}
		if err := tx.Model(node).UpdateColumns(map[string]interface{}{
			"text":       text,
			"updated_at": at,
		}).Error; err != nil {
			return err
		}
		node.Text = text
		node.UpdatedAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// ToggleLike flips the like and recounts while holding the node row lock
func (r *Repository) ToggleLike(ctx context.Context, nodeID, userID string, at time.Time) (content.LikeResult, error) {
	var res content.LikeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNode(tx, nodeID, "UPDATE")
		if err != nil {
			return err
		}

		removed := tx.Where("node_id = ? AND user_id = ?", nodeID, userID).Delete(&models.ContentLike{})
		if removed.Error != nil {
			return removed.Error
		}
		liked := removed.RowsAffected == 0
		if liked {
			if err := tx.Create(&models.ContentLike{NodeID: nodeID, UserID: userID, CreatedAt: at}).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&models.ContentLike{}).Where("node_id = ?", nodeID).Count(&count).Error; err != nil {
			return err
		}
		if err := tx.Model(node).UpdateColumn("like_count", count).Error; err != nil {
			return err
		}

		res = content.LikeResult{NodeID: nodeID, LikeCount: count, LikedByUser: liked}
		return nil
	})
	return res, err
}

// recountReports rewrites is_reported and reports_count from content_reports
func recountReports(tx *gorm.DB, node *models.ContentNode) (int64, error) {
	var count int64
	if err := tx.Model(&models.ContentReport{}).Where("node_id = ?", node.ID).Count(&count).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(node).UpdateColumns(map[string]interface{}{
		"is_reported":   count > 0,
		"reports_count": count,
	}).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// AddReport inserts a report unless the reporter already has one
func (r *Repository) AddReport(ctx context.Context, report *models.ContentReport) (content.ReportResult, error) {
	var res content.ReportResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNode(tx, report.NodeID, "UPDATE")
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.ContentReport{}).
			Where("node_id = ? AND reporter_id = ?", report.NodeID, report.ReporterID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return &content.ConflictError{Reason: fmt.Sprintf("%s already reported node %s", report.ReporterID, report.NodeID)}
		}
		if err := tx.Create(report).Error; err != nil {
			return err
		}

		count, err := recountReports(tx, node)
		if err != nil {
			return err
		}
		res = content.ReportResult{NodeID: node.ID, IsReported: count > 0, ReportedByUser: true, ReportsCount: count}
		return nil
	})
	return res, err
}

// RemoveReport deletes the reporter's report
func (r *Repository) RemoveReport(ctx context.Context, nodeID, userID string) (content.ReportResult, error) {
	var res content.ReportResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNode(tx, nodeID, "UPDATE")
		if err != nil {
			return err
		}

		removed := tx.Where("node_id = ? AND reporter_id = ?", nodeID, userID).Delete(&models.ContentReport{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			return &content.NotFoundError{Kind: content.KindReport, ID: userID + "@" + nodeID}
		}

		count, err := recountReports(tx, node)
		if err != nil {
			return err
		}
		res = content.ReportResult{NodeID: node.ID, IsReported: count > 0, ReportedByUser: false, ReportsCount: count}
		return nil
	})
	return res, err
}

// DeleteCascade locks the subtree level by level, then deletes it deepest
// level first together with its likes and reports
func (r *Repository) DeleteCascade(ctx context.Context, id string) (int, error) {
	var deleted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted = 0
		if _, err := lockNode(tx, id, "UPDATE"); err != nil {
			if content.IsNotFound(err) {
				return nil
			}
			return err
		}

		levels := [][]string{{id}}
		for frontier := levels[0]; len(frontier) > 0; {
			var next []string
			if err := tx.Model(&models.ContentNode{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("parent_id IN ?", frontier).
				Pluck("id", &next).Error; err != nil {
				return fmt.Errorf("failed to collect descendants: %w", err)
			}
			if len(next) > 0 {
				levels = append(levels, next)
			}
			frontier = next
		}

		for i := len(levels) - 1; i >= 0; i-- {
			ids := levels[i]
			if err := tx.Where("node_id IN ?", ids).Delete(&models.ContentLike{}).Error; err != nil {
				return err
			}
			if err := tx.Where("node_id IN ?", ids).Delete(&models.ContentReport{}).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", ids).Delete(&models.ContentNode{})
			if res.Error != nil {
				return res.Error
			}
			deleted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// SaveLineage stores a favorite path; the (user_id, path_key) unique index
// rejects duplicates
func (r *Repository) SaveLineage(ctx context.Context, saved *models.SavedLineage) error {
	err := r.db.WithContext(ctx).Create(saved).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &content.ConflictError{Reason: "lineage already saved"}
	}
	return err
}

// ListLineages returns the user's saved lineages, newest first
func (r *Repository) ListLineages(ctx context.Context, userID string) ([]*models.SavedLineage, error) {
	var saved []*models.SavedLineage
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Find(&saved).Error; err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteLineage removes one of the user's saved lineages
func (r *Repository) DeleteLineage(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.SavedLineage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &content.NotFoundError{Kind: content.KindSavedLineage, ID: id}
	}
	return nil
}
