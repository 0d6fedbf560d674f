package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/models"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// addNode stores a node created offset after epoch under parent ("" for an article)
func addNode(t *testing.T, store *Store, parent string, offset time.Duration) *models.ContentNode {
	t.Helper()
	node := &models.ContentNode{
		ID:        uuid.NewString(),
		Text:      "text",
		AuthorID:  "author",
		CreatedAt: epoch.Add(offset),
		UpdatedAt: epoch.Add(offset),
	}
	if parent != "" {
		node.ParentID = &parent
	}
	require.NoError(t, store.CreateNode(context.Background(), node))
	return node
}

func TestStore_CreateAndGetNode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	reply := addNode(t, store, root.ID, time.Minute)

	got, err := store.GetNode(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ParentIDValue())
	assert.True(t, got.CreatedAt.Equal(reply.CreatedAt))

	_, err = store.GetNode(ctx, uuid.NewString())
	assert.True(t, content.IsNotFound(err))
}

func TestStore_CreateNode_MissingParent(t *testing.T) {
	store := newTestStore(t)
	parent := uuid.NewString()

	err := store.CreateNode(context.Background(), &models.ContentNode{
		ID:       uuid.NewString(),
		Text:     "orphan",
		AuthorID: "a",
		ParentID: &parent,
	})
	assert.True(t, content.IsNotFound(err))
}

func TestStore_GetNodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := addNode(t, store, "", 0)
	b := addNode(t, store, a.ID, time.Second)

	nodes, err := store.GetNodes(ctx, []string{b.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, b.ID, nodes[0].ID)
	assert.Equal(t, a.ID, nodes[1].ID)

	_, err = store.GetNodes(ctx, []string{a.ID, uuid.NewString()})
	assert.True(t, content.IsNotFound(err))
}

func TestStore_ChildrenOf_Ordering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	older := addNode(t, store, root.ID, time.Minute)
	newer := addNode(t, store, root.ID, 2*time.Minute)
	popular := addNode(t, store, root.ID, 3*time.Minute)

	for _, user := range []string{"u1", "u2"} {
		_, err := store.ToggleLike(ctx, popular.ID, user, epoch)
		require.NoError(t, err)
	}

	byLikes, err := store.ChildrenOf(ctx, root.ID, content.OrderByLikes)
	require.NoError(t, err)
	assert.Equal(t, []string{popular.ID, older.ID, newer.ID}, ids(byLikes))

	byCreation, err := store.ChildrenOf(ctx, root.ID, content.OrderByCreation)
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID, newer.ID, popular.ID}, ids(byCreation))

	leaf, err := store.ChildrenOf(ctx, older.ID, content.OrderByLikes)
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = store.ChildrenOf(ctx, uuid.NewString(), content.OrderByLikes)
	assert.True(t, content.IsNotFound(err))
}

func TestStore_ToggleLike(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	node := addNode(t, store, "", 0)

	res, err := store.ToggleLike(ctx, node.ID, "u1", epoch)
	require.NoError(t, err)
	assert.Equal(t, content.LikeResult{NodeID: node.ID, LikeCount: 1, LikedByUser: true}, res)

	res, err = store.ToggleLike(ctx, node.ID, "u2", epoch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LikeCount)

	res, err = store.ToggleLike(ctx, node.ID, "u1", epoch)
	require.NoError(t, err)
	assert.Equal(t, content.LikeResult{NodeID: node.ID, LikeCount: 1, LikedByUser: false}, res)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LikeCount)

	_, err = store.ToggleLike(ctx, uuid.NewString(), "u1", epoch)
	assert.True(t, content.IsNotFound(err))
}

func TestStore_ToggleLike_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	node := addNode(t, store, "", 0)

	const users = 12
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.ToggleLike(ctx, node.ID, fmt.Sprintf("user-%d", i), epoch)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(users), got.LikeCount)
}

func TestStore_Reports(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	node := addNode(t, store, "", 0)

	res, err := store.AddReport(ctx, &models.ContentReport{NodeID: node.ID, ReporterID: "u1", Reason: "spam", ReportedAt: epoch})
	require.NoError(t, err)
	assert.Equal(t, content.ReportResult{NodeID: node.ID, IsReported: true, ReportedByUser: true, ReportsCount: 1}, res)

	_, err = store.AddReport(ctx, &models.ContentReport{NodeID: node.ID, ReporterID: "u1", ReportedAt: epoch})
	assert.True(t, content.IsConflict(err))

	_, err = store.AddReport(ctx, &models.ContentReport{NodeID: node.ID, ReporterID: "u2", ReportedAt: epoch})
	require.NoError(t, err)

	res, err = store.RemoveReport(ctx, node.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, content.ReportResult{NodeID: node.ID, IsReported: true, ReportedByUser: false, ReportsCount: 1}, res)

	res, err = store.RemoveReport(ctx, node.ID, "u2")
	require.NoError(t, err)
	assert.False(t, res.IsReported)
	assert.Equal(t, int64(0), res.ReportsCount)

	_, err = store.RemoveReport(ctx, node.ID, "u2")
	var nf *content.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, content.KindReport, nf.Kind)
}

func TestStore_DeleteCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	a := addNode(t, store, root.ID, time.Second)
	b := addNode(t, store, root.ID, 2*time.Second)
	a1 := addNode(t, store, a.ID, 3*time.Second)
	a11 := addNode(t, store, a1.ID, 4*time.Second)
	other := addNode(t, store, "", 5*time.Second)

	n, err := store.DeleteCascade(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range []string{a.ID, a1.ID, a11.ID} {
		_, err := store.GetNode(ctx, id)
		assert.True(t, content.IsNotFound(err), "node %s should be gone", id)
	}

	children, err := store.ChildrenOf(ctx, root.ID, content.OrderByLikes)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(children))

	n, err = store.DeleteCascade(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.GetNode(ctx, other.ID)
	assert.NoError(t, err)

	n, err = store.DeleteCascade(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_DeleteCascade_Batched(t *testing.T) {
	store := newTestStore(t)
	store.deleteBatch = 2
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	a := addNode(t, store, root.ID, time.Second)
	b := addNode(t, store, root.ID, 2*time.Second)
	a1 := addNode(t, store, a.ID, 3*time.Second)
	addNode(t, store, a.ID, 4*time.Second)
	addNode(t, store, b.ID, 5*time.Second)
	addNode(t, store, a1.ID, 6*time.Second)

	n, err := store.DeleteCascade(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	assert.Zero(t, countKeys(t, store, "node/"))
	assert.Zero(t, countKeys(t, store, "child/"))
	assert.Zero(t, countKeys(t, store, "cver/"))
}

func TestStore_DeleteCascade_ConflictsWithLateReply(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	child := addNode(t, store, root.ID, time.Second)

	txn := store.db.NewTransaction(true)
	defer txn.Discard()
	n, done, err := deleteSubtree(txn, root.ID, defaultDeleteBatch)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, 2, n)

	late := addNode(t, store, child.ID, time.Minute)
	assert.ErrorIs(t, txn.Commit(), badger.ErrConflict)

	n, err = store.DeleteCascade(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = store.GetNode(ctx, late.ID)
	assert.True(t, content.IsNotFound(err))
}

func TestStore_CreateNode_ConflictsWithCommittedCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	child := addNode(t, store, root.ID, time.Second)

	parentID := child.ID
	reply := &models.ContentNode{
		ID:        uuid.NewString(),
		Text:      "late",
		AuthorID:  "author",
		ParentID:  &parentID,
		CreatedAt: epoch.Add(time.Minute),
		UpdatedAt: epoch.Add(time.Minute),
	}

	txn := store.db.NewTransaction(true)
	defer txn.Discard()
	require.NoError(t, insertNode(txn, reply))

	n, err := store.DeleteCascade(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, txn.Commit(), badger.ErrConflict)
	assert.True(t, content.IsNotFound(store.CreateNode(ctx, reply)))
	assertNoOrphans(t, store)
}

func TestStore_DeleteCascade_ConcurrentReplies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	root := addNode(t, store, "", 0)
	parents := []string{root.ID}
	for i := 0; i < 4; i++ {
		parents = append(parents, addNode(t, store, root.ID, time.Duration(i+1)*time.Second).ID)
	}

	started := make(chan struct{})
	var startOnce sync.Once
	start := func() { startOnce.Do(func() { close(started) }) }

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer start()

		known := append([]string(nil), parents...)
		for i := 0; i < 300; i++ {
			if i == 20 {
				start()
			}
			parent := known[i%len(known)]
			node := &models.ContentNode{
				ID:        uuid.NewString(),
				Text:      "reply",
				AuthorID:  "writer",
				ParentID:  &parent,
				CreatedAt: epoch.Add(time.Duration(i) * time.Millisecond),
				UpdatedAt: epoch.Add(time.Duration(i) * time.Millisecond),
			}
			err := store.CreateNode(ctx, node)
			if err == nil {
				known = append(known, node.ID)
				continue
			}
			if !content.IsNotFound(err) {
				t.Errorf("unexpected create error: %v", err)
				return
			}
		}
	}()

	<-started
	if _, err := store.DeleteCascade(ctx, root.ID); err != nil {
		assert.ErrorIs(t, err, badger.ErrConflict)
	}
	wg.Wait()

	assertNoOrphans(t, store)

	_, err := store.DeleteCascade(ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, countKeys(t, store, "node/"))
	assert.Zero(t, countKeys(t, store, "child/"))
}

// assertNoOrphans fails for every stored reply whose parent record is gone
func assertNoOrphans(t *testing.T, store *Store) {
	t.Helper()
	err := store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("node/")
		it := txn.NewIterator(opts)
		defer it.Close()

		parents := map[string]string{}
		for it.Rewind(); it.Valid(); it.Next() {
			var rec nodeRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.ParentID != nil {
				parents[rec.ID] = *rec.ParentID
			}
		}

		for id, parent := range parents {
			if _, err := txn.Get(nodeKey(parent)); err != nil {
				t.Errorf("node %s lost its parent %s: %v", id, parent, err)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func countKeys(t *testing.T, store *Store, prefix string) int {
	t.Helper()
	n := 0
	err := store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestStore_SavedLineages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	path := []string{uuid.NewString(), uuid.NewString()}
	first := &models.SavedLineage{
		ID:        uuid.NewString(),
		UserID:    "u1",
		PathKey:   models.PathKey(path),
		NodePath:  models.JoinNodePath(path),
		CreatedAt: epoch,
	}
	require.NoError(t, store.SaveLineage(ctx, first))

	dup := *first
	dup.ID = uuid.NewString()
	assert.True(t, content.IsConflict(store.SaveLineage(ctx, &dup)))

	path2 := path[:1]
	second := &models.SavedLineage{
		ID:        uuid.NewString(),
		UserID:    "u1",
		PathKey:   models.PathKey(path2),
		NodePath:  models.JoinNodePath(path2),
		CreatedAt: epoch.Add(time.Hour),
	}
	require.NoError(t, store.SaveLineage(ctx, second))

	saved, err := store.ListLineages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, second.ID, saved[0].ID)
	assert.Equal(t, path, saved[1].NodeIDs())

	others, err := store.ListLineages(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, others)

	assert.True(t, content.IsNotFound(store.DeleteLineage(ctx, "u2", first.ID)))
	require.NoError(t, store.DeleteLineage(ctx, "u1", first.ID))
	assert.True(t, content.IsNotFound(store.DeleteLineage(ctx, "u1", first.ID)))
}

func TestStore_Health(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)

	assert.NoError(t, store.Health(context.Background()))
	require.NoError(t, store.Close())
	assert.Error(t, store.Health(context.Background()))
}

func ids(nodes []*models.ContentNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}
