package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// CommentService stores comments on diagrams. Anyone who can read a diagram
// may comment on it; a comment is deleted by its author or an administrator.
type CommentService struct {
	comments repository.CommentRepository
	diagrams *DiagramService
	logger   *slog.Logger
}

func NewCommentService(comments repository.CommentRepository, diagrams *DiagramService, logger *slog.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		diagrams: diagrams,
		logger:   logger,
	}
}

// Add stores a comment. position is optional and may be a JSON value or a
// string holding JSON.
func (s *CommentService) Add(ctx context.Context, caller model.Caller, diagramID, text string, position json.RawMessage) (*model.Comment, error) {
	if caller.IsGuest() {
		return nil, apperror.Unauthorized()
	}
	d, err := s.diagrams.load(ctx, diagramID)
	if err != nil {
		return nil, err
	}
	lvl, err := s.diagrams.authz.Level(ctx, caller, d)
	if err != nil {
		return nil, err
	}
	if !lvl.Allows(model.PermissionRead) {
		return nil, apperror.Forbidden("You don't have permission to comment on this diagram")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "comment text is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	pos, err := normalizePosition(position)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		DiagramID: d.ID,
		Owner:     caller.UserID,
		Content:   text,
		Position:  pos,
	}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		s.logger.Error("failed to add comment",
			slog.String("diagram", d.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding comment to %s: %w", d.ID, err)
	}

	s.logger.Info("comment added", slog.String("diagram", d.ID), slog.String("comment", c.ID))
	return c, nil
}

// List returns a readable diagram's comments, newest first.
func (s *CommentService) List(ctx context.Context, caller model.Caller, diagramID string) ([]model.Comment, error) {
	if _, err := s.diagrams.Get(ctx, caller, diagramID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListComments(ctx, diagramID)
	if err != nil {
		return nil, fmt.Errorf("listing comments of %s: %w", diagramID, err)
	}
	return comments, nil
}

func (s *CommentService) Delete(ctx context.Context, caller model.Caller, commentID string) error {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return apperror.ValidationFailed("id", "comment ID is required")
	}
	c, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if caller.IsGuest() {
		return apperror.Unauthorized()
	}
	if c.Owner != caller.UserID && !caller.Admin {
		return apperror.Forbidden("You don't have permission to delete this comment")
	}

	if err := s.comments.DeleteComment(ctx, c.ID); err != nil {
		return err
	}
	s.logger.Info("comment deleted", slog.String("comment", c.ID), slog.String("by", caller.UserID))
	return nil
}

// normalizePosition unwraps a JSON string holding JSON and rejects anything
// that isn't valid JSON. Empty and null positions become nil.
func normalizePosition(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		raw = json.RawMessage(text)
	}
	if !json.Valid(raw) {
		return nil, apperror.ValidationFailed("position", "position must be valid JSON")
	}
	return raw, nil
}
