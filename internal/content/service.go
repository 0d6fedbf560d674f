package content

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/internal/models"
	"github.com/branchwise/branchwise/pkg/logging"
	"github.com/branchwise/branchwise/pkg/telemetry"
)

// RoleAdmin is the only role allowed to cascade-delete content
const RoleAdmin = "admin"

// CreateInput is the payload of a new article or reply
type CreateInput struct {
	AuthorID string `json:"author_id" validate:"required,max=64"`
	Text     string `json:"text" validate:"required,max=10000"`
	Title    string `json:"title" validate:"max=150"`
	ParentID string `json:"parent_id" validate:"omitempty,uuid"`
}

type editInput struct {
	RequesterID string `json:"requester_id" validate:"required,max=64"`
	Text        string `json:"text" validate:"required,max=10000"`
}

type reportInput struct {
	UserID string `json:"user_id" validate:"required,max=64"`
	Reason string `json:"reason" validate:"max=500"`
}

// Service implements content creation, editing, engagement and moderation
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
	toggles  metric.Int64Counter
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid.NewString
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a content service over store
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   logging.WithComponent("content"),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := telemetry.Meter().Int64Counter("engagement.toggles",
		metric.WithDescription("Like and report changes applied"))
	if err != nil {
		s.logger.Warn("Failed to create engagement counter", zap.Error(err))
	}
	s.toggles = counter
	return s
}

// Store returns the underlying store
func (s *Service) Store() Store {
	return s.store
}

// Create stores a new article (no parent) or reply
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.ContentNode, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, translate(err)
	}
	if err := checkText(in.Text); err != nil {
		return nil, err
	}
	if in.ParentID != "" && in.Title != "" {
		return nil, Invalid("title", "only articles may have a title")
	}

	now := s.now()
	node := &models.ContentNode{
		ID:        s.newID(),
		Title:     in.Title,
		Text:      in.Text,
		AuthorID:  in.AuthorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.ParentID != "" {
		parentID := in.ParentID
		node.ParentID = &parentID
	}

	if err := s.store.CreateNode(ctx, node); err != nil {
		if IsNotFound(err) {
			return nil, Invalid("parent_id", fmt.Sprintf("parent %s does not exist", in.ParentID))
		}
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	s.logger.Debug("Created node",
		zap.String("id", node.ID),
		zap.String("author_id", node.AuthorID),
		zap.String("parent_id", node.ParentIDValue()))
	return node, nil
}

// Get loads one node
func (s *Service) Get(ctx context.Context, id string) (*models.ContentNode, error) {
	if err := CheckID("id", id); err != nil {
		return nil, err
	}
	return s.store.GetNode(ctx, id)
}

// Children lists the direct replies of parentID
func (s *Service) Children(ctx context.Context, parentID string, order ChildOrder) ([]*models.ContentNode, error) {
	if err := CheckID("parent_id", parentID); err != nil {
		return nil, err
	}
	return s.store.ChildrenOf(ctx, parentID, order)
}

// UpdateText replaces a node's text. Only the author may edit.
func (s *Service) UpdateText(ctx context.Context, id, requesterID, text string) (*models.ContentNode, error) {
	if err := CheckID("id", id); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(editInput{RequesterID: requesterID, Text: text}); err != nil {
		return nil, translate(err)
	}
	if err := checkText(text); err != nil {
		return nil, err
	}

	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.AuthorID != requesterID {
		return nil, &AuthorizationError{Action: "edit node " + id, RequesterID: requesterID}
	}

	updated, err := s.store.UpdateText(ctx, id, text, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Edited node", zap.String("id", id))
	return updated, nil
}

// ToggleLike likes the node for userID, or removes the like if present
func (s *Service) ToggleLike(ctx context.Context, nodeID, userID string) (LikeResult, error) {
	if err := CheckID("id", nodeID); err != nil {
		return LikeResult{}, err
	}
	if err := CheckUserID("user_id", userID); err != nil {
		return LikeResult{}, err
	}

	res, err := s.store.ToggleLike(ctx, nodeID, userID, s.now())
	if err != nil {
		return LikeResult{}, err
	}
	s.countToggle(ctx, "like", res.LikedByUser)
	return res, nil
}

// AddReport records userID's report on the node
func (s *Service) AddReport(ctx context.Context, nodeID, userID, reason string) (ReportResult, error) {
	if err := CheckID("id", nodeID); err != nil {
		return ReportResult{}, err
	}
	if err := s.validate.Struct(reportInput{UserID: userID, Reason: reason}); err != nil {
		return ReportResult{}, translate(err)
	}
	if err := CheckUserID("user_id", userID); err != nil {
		return ReportResult{}, err
	}

	res, err := s.store.AddReport(ctx, &models.ContentReport{
		NodeID:     nodeID,
		ReporterID: userID,
		Reason:     reason,
		ReportedAt: s.now(),
	})
	if err != nil {
		return ReportResult{}, err
	}
	s.countToggle(ctx, "report", true)
	s.logger.Info("Node reported",
		zap.String("id", nodeID),
		zap.String("reporter_id", userID),
		zap.Int64("reports_count", res.ReportsCount))
	return res, nil
}

// RemoveReport retracts userID's own report on the node
func (s *Service) RemoveReport(ctx context.Context, nodeID, userID string) (ReportResult, error) {
	if err := CheckID("id", nodeID); err != nil {
		return ReportResult{}, err
	}
	if err := CheckUserID("user_id", userID); err != nil {
		return ReportResult{}, err
	}

	res, err := s.store.RemoveReport(ctx, nodeID, userID)
	if err != nil {
		return ReportResult{}, err
	}
	s.countToggle(ctx, "report", false)
	return res, nil
}

// DeleteCascade removes a node and its whole reply subtree. Admin only.
func (s *Service) DeleteCascade(ctx context.Context, nodeID, requesterRole string) (int, error) {
	if requesterRole != RoleAdmin {
		return 0, &AuthorizationError{Action: "delete content"}
	}
	if err := CheckID("node_id", nodeID); err != nil {
		return 0, err
	}

	deleted, err := s.store.DeleteCascade(ctx, nodeID)
	if err != nil {
		if deleted > 0 {
			s.logger.Warn("Cascade delete stopped part way",
				zap.String("id", nodeID),
				zap.Int("deleted_count", deleted),
				zap.Error(err))
		}
		return 0, fmt.Errorf("failed to delete node %s: %w", nodeID, err)
	}
	s.logger.Info("Cascade delete",
		zap.String("id", nodeID),
		zap.Int("deleted_count", deleted))
	return deleted, nil
}

func (s *Service) countToggle(ctx context.Context, kind string, added bool) {
	if s.toggles == nil {
		return
	}
	s.toggles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("added", added),
	))
}
