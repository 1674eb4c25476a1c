// Package service holds the business logic between handlers and repositories.
//
// AuthService sits between the HTTP handlers and the GitHub client, the
// identity resolver and the token issuer:
//
//	AuthHandler (HTTP) → AuthService → GitHubAPI (code exchange, profile)
//	                                 ↘ IdentityResolver (DB)
//	                                 ↘ TokenIssuer (JWT)
//
// It never touches cookies or redirects; those are HTTP concerns.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/auth"
	"github.com/sakif/opensource-hub/internal/model"
)

// CallbackStage names the steps of the GitHub callback. A failure at any
// stage rejects the login; the stage is logged with the reason.
type CallbackStage string

const (
	StageAwaitingCallback CallbackStage = "AWAITING_CALLBACK"
	StageCSRFValidated    CallbackStage = "CSRF_VALIDATED"
	StageTokenExchanged   CallbackStage = "TOKEN_EXCHANGED"
	StageProfileFetched   CallbackStage = "PROFILE_FETCHED"
	StageIdentityResolved CallbackStage = "IDENTITY_RESOLVED"
	StageSessionIssued    CallbackStage = "SESSION_ISSUED"
)

// AuthService handles the authentication business logic.
type AuthService struct {
	github     GitHubAPI
	identities *IdentityResolver
	tokens     *auth.TokenIssuer
	logger     *slog.Logger
}

func NewAuthService(
	gh GitHubAPI,
	identities *IdentityResolver,
	tokens *auth.TokenIssuer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		github:     gh,
		identities: identities,
		tokens:     tokens,
		logger:     logger,
	}
}

// Session is a freshly issued token pair.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// LoginResult is a completed GitHub login plus the decoded state the
// handler needs to build the frontend redirect.
type LoginResult struct {
	Session
	State auth.State
}

// CompleteGitHubLogin runs the callback from state decoding to issued
// tokens.
//
//	AWAITING_CALLBACK → CSRF_VALIDATED → TOKEN_EXCHANGED → PROFILE_FETCHED
//	                  → IDENTITY_RESOLVED → SESSION_ISSUED
//
// Rejections carry apperror.ErrRejected with a reason code (bad_state,
// no_token, no_email). A profile fetch failure is ErrUpstream. Nothing is
// written to the database before PROFILE_FETCHED succeeds with an email.
func (s *AuthService) CompleteGitHubLogin(ctx context.Context, code, rawState string) (*LoginResult, error) {
	state, err := auth.DecodeState(rawState)
	if err != nil {
		return nil, s.reject(StageAwaitingCallback, apperror.Rejected(apperror.ReasonBadState, "invalid OAuth state"), err)
	}
	if code == "" {
		return nil, s.reject(StageAwaitingCallback, apperror.Rejected(apperror.ReasonBadState, "missing OAuth code"), nil)
	}

	ghToken, err := s.github.ExchangeCode(ctx, code)
	if err != nil {
		return nil, s.reject(StageCSRFValidated, apperror.Rejected(apperror.ReasonNoToken, "Access token not received"), err)
	}

	profile, err := s.github.FetchUser(ctx, ghToken)
	if err != nil {
		return nil, s.reject(StageTokenExchanged, apperror.Upstream("failed to fetch GitHub profile", err), err)
	}
	if profile.Email == nil || *profile.Email == "" {
		return nil, s.reject(StageTokenExchanged, apperror.Rejected(apperror.ReasonNoEmail, "GitHub email not received"), nil)
	}

	userID, err := s.identities.Resolve(ctx, Identity{
		Provider:    model.ProviderGitHub,
		ExternalID:  profile.ExternalID(),
		Email:       *profile.Email,
		DisplayName: profile.DisplayName(),
		AvatarURL:   profile.AvatarURL,
		Token:       ghToken,
	})
	if err != nil {
		s.logger.Error("oauth callback failed",
			slog.String("stage", string(StageProfileFetched)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	session, err := s.issue(userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", userID),
		slog.String("login", profile.Login),
		slog.String("stage", string(StageSessionIssued)),
	)

	return &LoginResult{Session: *session, State: *state}, nil
}

// reject logs a stopped callback at the stage it stopped after and returns
// appErr.
func (s *AuthService) reject(after CallbackStage, appErr *apperror.AppError, cause error) error {
	attrs := []any{
		slog.String("stage", string(after)),
		slog.String("reason", appErr.Code),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	s.logger.Warn("oauth callback rejected", attrs...)
	return appErr
}

// Refresh exchanges a valid refresh token for a new access token and a
// rotated refresh token. There is no revocation list; the old refresh token
// stays valid until it expires.
func (s *AuthService) Refresh(refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperror.Unauthorized("Access Denied. No refresh token provided.")
	}

	userID, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.Debug("refresh rejected", slog.String("error", err.Error()))
		return nil, apperror.Unauthorized("invalid refresh token")
	}

	return s.issue(userID)
}

func (s *AuthService) issue(userID string) (*Session, error) {
	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token for user %s: %w", userID, err)
	}
	refresh, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing refresh token for user %s: %w", userID, err)
	}
	return &Session{UserID: userID, AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshMaxAge is the refresh cookie lifetime in seconds.
func (s *AuthService) RefreshMaxAge() int {
	return int(s.tokens.RefreshTTL().Seconds())
}
