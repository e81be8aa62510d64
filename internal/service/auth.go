package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roaa-mamdouh/mermaid-studio/internal/apperror"
	"github.com/roaa-mamdouh/mermaid-studio/internal/auth"
	"github.com/roaa-mamdouh/mermaid-studio/internal/model"
	"github.com/roaa-mamdouh/mermaid-studio/internal/repository"
)

// AuthService turns a GitHub login into a stored user and a session token,
// and resolves tokens back into callers.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT)
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	admins map[string]bool // lower-cased GitHub logins granted the admin role
	logger *slog.Logger
}

// NewAuthService wires the auth flow. adminLogins lists GitHub usernames
// that become administrators on login.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	adminLogins []string,
	logger *slog.Logger,
) *AuthService {
	admins := make(map[string]bool, len(adminLogins))
	for _, login := range adminLogins {
		if login = strings.ToLower(strings.TrimSpace(login)); login != "" {
			admins[login] = true
		}
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		admins: admins,
		logger: logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub upserts the GitHub user and issues a token.
//
// The first login inserts the user, later logins refresh the profile.
// Logins listed as administrators are promoted; the repository never
// demotes an existing administrator.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     strings.ToLower(strings.TrimSpace(ghUser.Email)),
		Name:      strings.TrimSpace(ghUser.Name),
		AvatarURL: ghUser.AvatarURL,
		Role:      model.RoleUser,
	}
	if s.admins[strings.ToLower(ghUser.Login)] {
		user.Role = model.RoleAdmin
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
		slog.String("role", user.Role),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

// Caller resolves the user behind a request. An empty userID is a guest.
// A token whose user has since been deleted is treated as a guest too.
func (s *AuthService) Caller(ctx context.Context, userID string) (model.Caller, error) {
	if userID == "" {
		return model.Caller{}, nil
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if apperror.IsKind(err) {
			return model.Caller{}, nil
		}
		return model.Caller{}, fmt.Errorf("service/auth: loading caller %s: %w", userID, err)
	}
	return model.CallerFromUser(user), nil
}

// SetRole grants or removes the admin role. Only administrators may call it,
// and they cannot demote themselves.
func (s *AuthService) SetRole(ctx context.Context, caller model.Caller, userID, role string) error {
	if caller.IsGuest() {
		return apperror.Unauthorized()
	}
	if !caller.Admin {
		return apperror.Forbidden("only administrators can change roles")
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}
	if userID == caller.UserID && role != model.RoleAdmin {
		return apperror.ValidationFailed("role", "administrators cannot demote themselves")
	}

	if err := s.users.SetRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info("user role changed",
		slog.String("userID", userID),
		slog.String("role", role),
		slog.String("by", caller.UserID),
	)
	return nil
}

// ValidateToken returns the user ID a token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
