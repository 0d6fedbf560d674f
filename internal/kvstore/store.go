package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
	"github.com/branchwise/branchwise/pkg/logging"
)

const (
	// maxTxnRetries bounds optimistic retries on badger.ErrConflict
	maxTxnRetries = 16
	// defaultDeleteBatch is the most nodes one cascade transaction removes
	defaultDeleteBatch = 10000
)

// Store is a content.Store on an embedded badger database. Likes and reports
// live inside the node record, so every engagement change is a single-key
// read-modify-write under an optimistic transaction.
type Store struct {
	db          *badger.DB
	logger      *zap.Logger
	deleteBatch int
}

var _ content.Store = (*Store)(nil)

// nodeRecord is the persisted form of a node
type nodeRecord struct {
	models.ContentNode
	LikedBy []string               `json:"liked_by"`
	Reports []models.ContentReport `json:"reports"`
}

// Open opens (or creates) the database at path. An empty path keeps
// everything in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(newBadgerLogger()).
		WithNumVersionsToKeep(1)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}

	logging.GetLogger().Info("Badger store opened", zap.Bool("in_memory", path == ""))
	return &Store{
		db:          db,
		logger:      logging.WithComponent("kvstore"),
		deleteBatch: defaultDeleteBatch,
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Health reports whether the database is still open
func (s *Store) Health(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when a concurrent
// commit touched the keys fn read
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("Transaction conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("transaction still conflicting after %d attempts: %w", maxTxnRetries, badger.ErrConflict)
}

func getRecord(txn *badger.Txn, id string) (*nodeRecord, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, content.NodeNotFound(id)
	}
	if err != nil {
		return nil, err
	}

	var rec nodeRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode node %s: %w", id, err)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, rec *nodeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(nodeKey(rec.ID), data)
}

func nodeOf(rec *nodeRecord) *models.ContentNode {
	node := rec.ContentNode
	return &node
}

// childIDs lists the index entries under parentID. The iterator is closed
// before returning so callers may open another one.
func childIDs(txn *badger.Txn, parentID string) []string {
	prefix := childPrefix(parentID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids
}

// CreateNode persists a new node and its parent index entry
func (s *Store) CreateNode(ctx context.Context, node *models.ContentNode) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertNode(txn, node)
	})
}

func insertNode(txn *badger.Txn, node *models.ContentNode) error {
	if _, err := txn.Get(nodeKey(node.ID)); err == nil {
		return fmt.Errorf("node %s already exists", node.ID)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	if node.ParentID != nil {
		parentID := *node.ParentID
		// A cascade that commits first deletes the parent key we read here
		if _, err := getRecord(txn, parentID); err != nil {
			return err
		}
		if err := txn.Set(childKey(parentID, node.ID), nil); err != nil {
			return err
		}
		// A cascade that is still running has read this key and will conflict
		if err := txn.Set(childVersionKey(parentID), []byte(node.ID)); err != nil {
			return err
		}
	}

	return putRecord(txn, &nodeRecord{ContentNode: *node})
}

// GetNode loads one node
func (s *Store) GetNode(_ context.Context, id string) (*models.ContentNode, error) {
	var node *models.ContentNode
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		node = nodeOf(rec)
		return nil
	})
	return node, err
}

// GetNodes loads nodes in the order of ids
func (s *Store) GetNodes(_ context.Context, ids []string) ([]*models.ContentNode, error) {
	nodes := make([]*models.ContentNode, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			nodes = append(nodes, nodeOf(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// ChildrenOf lists direct replies of parentID from one snapshot
func (s *Store) ChildrenOf(_ context.Context, parentID string, order content.ChildOrder) ([]*models.ContentNode, error) {
	var children []*models.ContentNode
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getRecord(txn, parentID); err != nil {
			return err
		}
		for _, id := range childIDs(txn, parentID) {
			rec, err := getRecord(txn, id)
			if content.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			children = append(children, nodeOf(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	content.SortChildren(children, order)
	return children, nil
}

// UpdateText replaces the text and bumps UpdatedAt
func (s *Store) UpdateText(ctx context.Context, id, text string, at time.Time) (*models.ContentNode, error) {
	var node *models.ContentNode
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		rec.Text = text
		rec.UpdatedAt = at
		if err := putRecord(txn, rec); err != nil {
			return err
		}
		node = nodeOf(rec)
		return nil
	})
	return node, err
}

// ToggleLike flips userID's membership in the node's like set
func (s *Store) ToggleLike(ctx context.Context, nodeID, userID string, _ time.Time) (content.LikeResult, error) {
	var res content.LikeResult
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, nodeID)
		if err != nil {
			return err
		}

		liked := false
		kept := rec.LikedBy[:0:0]
		for _, id := range rec.LikedBy {
			if id == userID {
				liked = true
				continue
			}
			kept = append(kept, id)
		}
		if !liked {
			kept = append(kept, userID)
		}
		rec.LikedBy = kept
		rec.LikeCount = int64(len(kept))

		if err := putRecord(txn, rec); err != nil {
			return err
		}
		res = content.LikeResult{NodeID: nodeID, LikeCount: rec.LikeCount, LikedByUser: !liked}
		return nil
	})
	return res, err
}

// AddReport appends a report unless the reporter already has one
func (s *Store) AddReport(ctx context.Context, report *models.ContentReport) (content.ReportResult, error) {
	var res content.ReportResult
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, report.NodeID)
		if err != nil {
			return err
		}
		for _, r := range rec.Reports {
			if r.ReporterID == report.ReporterID {
				return &content.ConflictError{Reason: fmt.Sprintf("%s already reported node %s", report.ReporterID, report.NodeID)}
			}
		}

		rec.Reports = append(rec.Reports, *report)
		rec.ReportsCount = int64(len(rec.Reports))
		rec.IsReported = rec.ReportsCount > 0

		if err := putRecord(txn, rec); err != nil {
			return err
		}
		res = reportResult(rec, true)
		return nil
	})
	return res, err
}

// RemoveReport drops the reporter's report
func (s *Store) RemoveReport(ctx context.Context, nodeID, userID string) (content.ReportResult, error) {
	var res content.ReportResult
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, nodeID)
		if err != nil {
			return err
		}

		idx := -1
		for i, r := range rec.Reports {
			if r.ReporterID == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &content.NotFoundError{Kind: content.KindReport, ID: userID + "@" + nodeID}
		}

		rec.Reports = append(rec.Reports[:idx:idx], rec.Reports[idx+1:]...)
		rec.ReportsCount = int64(len(rec.Reports))
		rec.IsReported = rec.ReportsCount > 0

		if err := putRecord(txn, rec); err != nil {
			return err
		}
		res = reportResult(rec, false)
		return nil
	})
	return res, err
}

func reportResult(rec *nodeRecord, reportedByUser bool) content.ReportResult {
	return content.ReportResult{
		NodeID:         rec.ID,
		IsReported:     rec.IsReported,
		ReportedByUser: reportedByUser,
		ReportsCount:   rec.ReportsCount,
	}
}

// DeleteCascade removes the node and its subtree bottom-up. A subtree larger
// than the delete batch is removed over several transactions, leaves first,
// so a failure part way leaves no reply without its parent. On error the
// count of nodes already removed is returned with it.
func (s *Store) DeleteCascade(ctx context.Context, id string) (int, error) {
	total := 0
	batch := s.deleteBatch
	for {
		var n int
		var done bool
		err := s.update(ctx, func(txn *badger.Txn) error {
			var err error
			n, done, err = deleteSubtree(txn, id, batch)
			return err
		})
		if errors.Is(err, badger.ErrTxnTooBig) && batch > 1 {
			batch /= 2
			s.logger.Warn("Cascade transaction too big, shrinking batch",
				zap.String("node_id", id),
				zap.Int("batch", batch))
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
		if done {
			return total, nil
		}
	}
}

type cascadeEntry struct {
	id       string
	parentID string
	missing  bool
}

// deleteSubtree deletes up to limit nodes of the subtree under id in
// post-order. done reports whether id itself was deleted, or was already
// gone. Every visited node key and child version key is read so that a reply
// created under any of them conflicts with txn.
func deleteSubtree(txn *badger.Txn, id string, limit int) (int, bool, error) {
	root, err := getRecord(txn, id)
	if content.IsNotFound(err) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}

	var order []cascadeEntry
	var walk func(nodeID, parentID string, missing bool) (bool, error)
	walk = func(nodeID, parentID string, missing bool) (bool, error) {
		if _, err := txn.Get(childVersionKey(nodeID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return false, err
		}
		for _, child := range childIDs(txn, nodeID) {
			_, err := getRecord(txn, child)
			if err != nil && !content.IsNotFound(err) {
				return false, err
			}
			complete, err := walk(child, nodeID, err != nil)
			if err != nil || !complete {
				return false, err
			}
		}
		if len(order) >= limit {
			return false, nil
		}
		order = append(order, cascadeEntry{id: nodeID, parentID: parentID, missing: missing})
		return true, nil
	}

	done, err := walk(id, root.ParentIDValue(), false)
	if err != nil {
		return 0, false, err
	}

	deleted := 0
	for _, e := range order {
		if err := txn.Delete(nodeKey(e.id)); err != nil {
			return 0, false, fmt.Errorf("failed to delete node %s: %w", e.id, err)
		}
		if err := txn.Delete(childVersionKey(e.id)); err != nil {
			return 0, false, err
		}
		if e.parentID != "" {
			if err := txn.Delete(childKey(e.parentID, e.id)); err != nil {
				return 0, false, err
			}
		}
		if !e.missing {
			deleted++
		}
	}
	return deleted, done, nil
}

// SaveLineage stores a favorite path, once per user and path
func (s *Store) SaveLineage(ctx context.Context, saved *models.SavedLineage) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := favKey(saved.UserID, saved.PathKey)
		if _, err := txn.Get(key); err == nil {
			return &content.ConflictError{Reason: "lineage already saved"}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func scanLineages(txn *badger.Txn, userID string) ([]*models.SavedLineage, error) {
	prefix := favPrefix(userID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*models.SavedLineage
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var saved models.SavedLineage
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &saved)
		}); err != nil {
			return nil, err
		}
		// A user id containing the separator can share a prefix with another user
		if saved.UserID != userID {
			continue
		}
		out = append(out, &saved)
	}
	return out, nil
}

// ListLineages returns the user's saved lineages, newest first
func (s *Store) ListLineages(_ context.Context, userID string) ([]*models.SavedLineage, error) {
	var out []*models.SavedLineage
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = scanLineages(txn, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteLineage removes one of the user's saved lineages
func (s *Store) DeleteLineage(ctx context.Context, userID, id string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		saved, err := scanLineages(txn, userID)
		if err != nil {
			return err
		}
		for _, l := range saved {
			if l.ID == id {
				return txn.Delete(favKey(userID, l.PathKey))
			}
		}
		return &content.NotFoundError{Kind: content.KindSavedLineage, ID: id}
	})
}
