package content_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/branchwise/branchwise/internal/content"
	"github.com/branchwise/branchwise/internal/kvstore"
	"github.com/branchwise/branchwise/internal/models"
)

// testClock advances one second per call
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) *content.Service {
	t.Helper()
	store, err := kvstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	return content.NewService(store, content.WithClock(clock.Now))
}

func createArticle(t *testing.T, svc *content.Service) *models.ContentNode {
	t.Helper()
	node, err := svc.Create(context.Background(), content.CreateInput{
		AuthorID: "alice",
		Title:    "An article",
		Text:     "Once upon a time",
	})
	require.NoError(t, err)
	return node
}

func TestService_Create(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	article := createArticle(t, svc)
	assert.True(t, article.IsRoot())
	assert.NotEmpty(t, article.ID)
	assert.Equal(t, int64(0), article.LikeCount)
	assert.False(t, article.IsReported)

	reply, err := svc.Create(ctx, content.CreateInput{AuthorID: "bob", Text: "and then", ParentID: article.ID})
	require.NoError(t, err)
	assert.Equal(t, article.ID, reply.ParentIDValue())
	assert.True(t, reply.CreatedAt.After(article.CreatedAt))

	got, err := svc.Get(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, "and then", got.Text)
}

func TestService_Create_Invalid(t *testing.T) {
	svc := newTestService(t)
	article := createArticle(t, svc)

	tests := []struct {
		name  string
		in    content.CreateInput
		field string
	}{
		{
			name:  "missing author",
			in:    content.CreateInput{Text: "x"},
			field: "author_id",
		},
		{
			name:  "empty text",
			in:    content.CreateInput{AuthorID: "a"},
			field: "text",
		},
		{
			name:  "whitespace text",
			in:    content.CreateInput{AuthorID: "a", Text: "  \n\t"},
			field: "text",
		},
		{
			name:  "text too long",
			in:    content.CreateInput{AuthorID: "a", Text: strings.Repeat("x", content.MaxTextLength+1)},
			field: "text",
		},
		{
			name:  "title too long",
			in:    content.CreateInput{AuthorID: "a", Text: "x", Title: strings.Repeat("t", content.MaxTitleLength+1)},
			field: "title",
		},
		{
			name:  "malformed parent",
			in:    content.CreateInput{AuthorID: "a", Text: "x", ParentID: "not-a-uuid"},
			field: "parent_id",
		},
		{
			name:  "unknown parent",
			in:    content.CreateInput{AuthorID: "a", Text: "x", ParentID: uuid.NewString()},
			field: "parent_id",
		},
		{
			name:  "reply with title",
			in:    content.CreateInput{AuthorID: "a", Text: "x", Title: "t", ParentID: article.ID},
			field: "title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			var verr *content.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.NewString())
	assert.True(t, content.IsNotFound(err))

	_, err = svc.Get(context.Background(), "nope")
	assert.True(t, content.IsValidation(err))
}

func TestService_UpdateText(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	article := createArticle(t, svc)

	_, err := svc.UpdateText(ctx, article.ID, "mallory", "rewritten")
	assert.True(t, content.IsAuthorization(err))

	_, err = svc.UpdateText(ctx, article.ID, "alice", " ")
	assert.True(t, content.IsValidation(err))

	updated, err := svc.UpdateText(ctx, article.ID, "alice", "rewritten")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", updated.Text)
	assert.True(t, updated.UpdatedAt.After(article.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(article.CreatedAt))
}

func TestService_ToggleLike(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	article := createArticle(t, svc)

	res, err := svc.ToggleLike(ctx, article.ID, "bob")
	require.NoError(t, err)
	assert.True(t, res.LikedByUser)
	assert.Equal(t, int64(1), res.LikeCount)

	res, err = svc.ToggleLike(ctx, article.ID, "bob")
	require.NoError(t, err)
	assert.False(t, res.LikedByUser)
	assert.Equal(t, int64(0), res.LikeCount)

	_, err = svc.ToggleLike(ctx, article.ID, "")
	assert.True(t, content.IsValidation(err))

	_, err = svc.ToggleLike(ctx, uuid.NewString(), "bob")
	assert.True(t, content.IsNotFound(err))
}

func TestService_Reports(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	article := createArticle(t, svc)

	res, err := svc.AddReport(ctx, article.ID, "bob", "off topic")
	require.NoError(t, err)
	assert.True(t, res.IsReported)
	assert.True(t, res.ReportedByUser)

	_, err = svc.AddReport(ctx, article.ID, "bob", "again")
	assert.True(t, content.IsConflict(err))

	_, err = svc.AddReport(ctx, article.ID, "carol", strings.Repeat("r", content.MaxReasonLength+1))
	assert.True(t, content.IsValidation(err))

	res, err = svc.RemoveReport(ctx, article.ID, "bob")
	require.NoError(t, err)
	assert.False(t, res.IsReported)
	assert.Equal(t, int64(0), res.ReportsCount)

	_, err = svc.RemoveReport(ctx, article.ID, "bob")
	assert.True(t, content.IsNotFound(err))

	got, err := svc.Get(ctx, article.ID)
	require.NoError(t, err)
	assert.False(t, got.IsReported)
}

func TestService_DeleteCascade(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	article := createArticle(t, svc)

	reply, err := svc.Create(ctx, content.CreateInput{AuthorID: "bob", Text: "r", ParentID: article.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, content.CreateInput{AuthorID: "carol", Text: "rr", ParentID: reply.ID})
	require.NoError(t, err)

	_, err = svc.DeleteCascade(ctx, article.ID, "user")
	var authErr *content.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	n, err := svc.DeleteCascade(ctx, article.ID, content.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = svc.Get(ctx, reply.ID)
	assert.True(t, content.IsNotFound(err))

	n, err = svc.DeleteCascade(ctx, article.ID, content.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestParseChildOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    content.ChildOrder
		wantErr bool
	}{
		{"", content.OrderByLikes, false},
		{"likes", content.OrderByLikes, false},
		{"created", content.OrderByCreation, false},
		{"newest", content.OrderByLikes, true},
	}

	for _, tt := range tests {
		got, err := content.ParseChildOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseChildOrder(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseChildOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSortChildren(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	nodes := []*models.ContentNode{
		{ID: "c", LikeCount: 1, CreatedAt: base.Add(time.Minute)},
		{ID: "b", LikeCount: 1, CreatedAt: base},
		{ID: "a", LikeCount: 1, CreatedAt: base},
		{ID: "d", LikeCount: 5, CreatedAt: base.Add(time.Hour)},
	}

	content.SortChildren(nodes, content.OrderByLikes)
	got := make([]string, 0, len(nodes))
	for _, n := range nodes {
		got = append(got, n.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, got)

	content.SortChildren(nodes, content.OrderByCreation)
	got = got[:0]
	for _, n := range nodes {
		got = append(got, n.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
