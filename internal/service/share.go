package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/notify"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// maxTokenAttempts bounds how often Share mints a new token after a
// collision before giving up.
const maxTokenAttempts = 5

// ShareInput is the share_diagram request.
type ShareInput struct {
	Email           string                `json:"user_email"`
	PermissionLevel model.PermissionLevel `json:"permission_level"`
	ExpiryDays      *int                  `json:"expiry_days"`
}

// ShareService grants, lists and revokes diagram shares and resolves public
// share links.
type ShareService struct {
	shares   repository.ShareRepository
	diagrams repository.DiagramRepository
	authz    *Authorizer
	notifier notify.Notifier
	logger   *slog.Logger
	now      clock
	newToken func(diagramID string) string
}

func NewShareService(
	shares repository.ShareRepository,
	diagrams repository.DiagramRepository,
	authz *Authorizer,
	notifier notify.Notifier,
	logger *slog.Logger,
) *ShareService {
	return &ShareService{
		shares:   shares,
		diagrams: diagrams,
		authz:    authz,
		notifier: notifier,
		logger:   logger,
		now:      systemClock,
		newToken: newShareToken,
	}
}

// newShareToken hashes the diagram ID with a fresh random UUID into a
// 32-character hex token.
func newShareToken(diagramID string) string {
	h, _ := blake2b.New(16, nil) // only fails for a bad size or key
	h.Write([]byte(diagramID + uuid.New().String()))
	return hex.EncodeToString(h.Sum(nil))
}

// Share grants in.Email access to a diagram. The caller must hold admin
// level on it (owner, admin share or administrator role).
func (s *ShareService) Share(ctx context.Context, caller model.Caller, diagramID string, in ShareInput) (*model.Share, error) {
	d, err := s.load(ctx, diagramID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Require(ctx, caller, d, model.PermissionAdmin); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperror.ValidationFailed("user_email", "user email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("user_email", fmt.Sprintf("%q is not a valid email address", in.Email))
	}

	level := in.PermissionLevel
	if level == "" {
		level = model.PermissionRead
	}
	if !level.Valid() {
		return nil, apperror.ValidationFailed("permission_level", fmt.Sprintf("unknown permission level %q", level))
	}

	share := &model.Share{
		DiagramID:       d.ID,
		SharedWith:      email,
		PermissionLevel: level,
		CreatedBy:       caller.UserID,
	}
	if in.ExpiryDays != nil {
		if *in.ExpiryDays <= 0 {
			return nil, apperror.ValidationFailed("expiry_days", "expiry days must be a positive number")
		}
		expires := s.now().AddDate(0, 0, *in.ExpiryDays)
		share.ExpiresAt = &expires
	}

	if err := s.insert(ctx, share); err != nil {
		return nil, err
	}

	s.logger.Info("diagram shared",
		slog.String("diagram", d.ID),
		slog.String("sharedWith", email),
		slog.String("permission", string(level)),
		slog.String("by", caller.UserID),
	)

	s.publish(ctx, notify.EventDiagramShared, d, share, caller)
	return share, nil
}

// insert mints tokens until one is free and the row is stored.
func (s *ShareService) insert(ctx context.Context, share *model.Share) error {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token := s.newToken(share.DiagramID)

		exists, err := s.shares.TokenExists(ctx, token)
		if err != nil {
			return fmt.Errorf("checking share token: %w", err)
		}
		if exists {
			s.logger.Warn("share token collision, regenerating", slog.Int("attempt", attempt))
			continue
		}

		share.Token = token
		err = s.shares.CreateShare(ctx, share)
		if errors.Is(err, repository.ErrDuplicateToken) {
			s.logger.Warn("share token taken on insert, regenerating", slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.logger.Error("failed to create share",
				slog.String("diagram", share.DiagramID),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("creating share: %w", err)
		}
		return nil
	}
	return fmt.Errorf("creating share: no free token after %d attempts", maxTokenAttempts)
}

// List returns every share of a diagram. Needs admin level.
func (s *ShareService) List(ctx context.Context, caller model.Caller, diagramID string) ([]model.Share, error) {
	d, err := s.load(ctx, diagramID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Require(ctx, caller, d, model.PermissionAdmin); err != nil {
		return nil, err
	}
	shares, err := s.shares.ListShares(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("listing shares of %s: %w", d.ID, err)
	}
	return shares, nil
}

// Revoke deletes a share. Needs admin level on the shared diagram.
func (s *ShareService) Revoke(ctx context.Context, caller model.Caller, shareID string) error {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return apperror.ValidationFailed("id", "share ID is required")
	}
	share, err := s.shares.GetShare(ctx, shareID)
	if err != nil {
		return err
	}
	d, err := s.diagrams.GetByID(ctx, share.DiagramID)
	if err != nil {
		return err
	}
	if err := s.authz.Require(ctx, caller, d, model.PermissionAdmin); err != nil {
		return err
	}

	if err := s.shares.DeleteShare(ctx, share.ID); err != nil {
		return err
	}

	s.logger.Info("diagram share revoked",
		slog.String("diagram", d.ID),
		slog.String("share", share.ID),
		slog.String("sharedWith", share.SharedWith),
		slog.String("by", caller.UserID),
	)

	s.publish(ctx, notify.EventShareRevoked, d, share, caller)
	return nil
}

// GetPublic resolves a share token. No login is needed; the token is the
// credential.
func (s *ShareService) GetPublic(ctx context.Context, token string) (*model.SharedDiagram, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.InvalidShareToken()
	}

	share, err := s.shares.GetShareByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if share.IsExpired(s.now()) {
		return nil, apperror.Expired("this share link has expired")
	}

	d, err := s.diagrams.GetByID(ctx, share.DiagramID)
	if err != nil {
		return nil, err
	}
	return &model.SharedDiagram{Diagram: d, PermissionLevel: share.PermissionLevel}, nil
}

// SweepExpired deletes shares that expired more than retention ago and
// returns how many went.
func (s *ShareService) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.shares.DeleteExpiredBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweeping expired shares: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired shares removed", slog.Int64("count", n))
	}
	return n, nil
}

// publish hands the event to the notifier. Failures are logged and dropped.
func (s *ShareService) publish(ctx context.Context, eventType string, d *model.Diagram, share *model.Share, caller model.Caller) {
	event := &notify.ShareEvent{
		Type:            eventType,
		DiagramID:       d.ID,
		DiagramTitle:    d.Title,
		SharedWith:      share.SharedWith,
		SharedBy:        caller.Name,
		PermissionLevel: string(share.PermissionLevel),
		ExpiresAt:       share.ExpiresAt,
		Timestamp:       s.now(),
	}
	if eventType == notify.EventDiagramShared {
		event.ShareToken = share.Token
	}
	if err := s.notifier.NotifyShare(ctx, event); err != nil {
		s.logger.Warn("share notification failed",
			slog.String("diagram", d.ID),
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ShareService) load(ctx context.Context, id string) (*model.Diagram, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("diagram", "diagram ID is required")
	}
	return s.diagrams.GetByID(ctx, id)
}
