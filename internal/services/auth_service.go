package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

type AuthConfig struct {
	AppURL        string
	AdminEmail    string
	WhitelistMode bool
}

type AuthService interface {
	Login(ctx context.Context, req models.LoginRequest, ip string) (*models.TokenResponse, error)
	Signup(ctx context.Context, req models.SignupRequest, ip string) (*models.TokenResponse, error)
	// ResetPassword never reports whether the address exists.
	ResetPassword(ctx context.Context, email, ip string)
	Logout(ctx context.Context, accessToken, userID, ip string)
}

type authService struct {
	cfg       AuthConfig
	idp       IdentityAuth
	profiles  pgrepo.ProfileRepository
	whitelist pgrepo.WhitelistRepository
	activity  ActivityService
	log       logrus.FieldLogger
}

func NewAuthService(cfg AuthConfig, idp IdentityAuth, profiles pgrepo.ProfileRepository,
	whitelist pgrepo.WhitelistRepository, activity ActivityService, log logrus.FieldLogger) AuthService {
	return &authService{cfg: cfg, idp: idp, profiles: profiles, whitelist: whitelist, activity: activity, log: log}
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest, ip string) (*models.TokenResponse, error) {
	const op = "AuthService.Login"

	email := strings.TrimSpace(req.Email)
	sess, err := s.idp.Token(ctx, email, req.Password)
	if err != nil {
		if identity.IsAuthError(err) {
			s.activity.Record(ctx, models.Activity{Kind: models.ActivityLoginFailed, Email: email, IP: ip})
			return nil, utils.E(utils.CodeUnauthorized, op, "Invalid credentials", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "authentication provider unavailable", err)
	}

	user := defaultUser(sess.User.ID, sess.User.Email, s.cfg.AdminEmail)
	user.CreatedAt = sess.User.CreatedAt
	if p, err := s.profiles.GetByID(ctx, sess.User.ID); err == nil {
		user = p.ToUser(sess.User.Email, sess.User.CreatedAt)
	} else if !errors.Is(err, utils.ErrNotFound) {
		s.log.WithError(err).WithField("user_id", sess.User.ID).Warn("profile lookup failed on login")
	}

	s.activity.Record(ctx, models.Activity{Kind: models.ActivityLogin, UserID: user.ID, Email: user.Email, IP: ip})
	return &models.TokenResponse{AccessToken: sess.AccessToken, TokenType: tokenType(sess), User: user}, nil
}

func (s *authService) Signup(ctx context.Context, req models.SignupRequest, ip string) (*models.TokenResponse, error) {
	const op = "AuthService.Signup"

	email := strings.TrimSpace(req.Email)
	if s.cfg.WhitelistMode {
		ok, err := s.whitelist.IsListed(ctx, email)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to check invitation", err)
		}
		if !ok {
			return nil, utils.E(utils.CodeForbidden, op, "Registration is by invitation only", nil)
		}
	}

	sess, err := s.idp.Signup(ctx, email, req.Password, s.cfg.AppURL+"/dashboard", nil)
	if err != nil {
		var ae *identity.AuthError
		if errors.As(err, &ae) {
			msg := ae.Message
			if msg == "" {
				msg = "Failed to create account"
			}
			return nil, utils.E(utils.CodeInvalidArgument, op, msg, err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "authentication provider unavailable", err)
	}

	p := &models.Profile{
		ID:       sess.User.ID,
		Email:    email,
		Language: models.DefaultLanguage,
		IsAdmin:  isAdminEmail(email, s.cfg.AdminEmail),
	}
	if err := s.profiles.Insert(ctx, p); err != nil {
		// Me and UpdateMe create the row later
		s.log.WithError(err).WithField("user_id", p.ID).Warn("failed to create profile on signup")
	}

	s.activity.Record(ctx, models.Activity{Kind: models.ActivitySignup, UserID: p.ID, Email: email, IP: ip})
	return &models.TokenResponse{
		AccessToken: sess.AccessToken,
		TokenType:   tokenType(sess),
		User:        p.ToUser(sess.User.Email, sess.User.CreatedAt),
	}, nil
}

func (s *authService) ResetPassword(ctx context.Context, email, ip string) {
	email = strings.TrimSpace(email)
	if err := s.idp.Recover(ctx, email, s.cfg.AppURL+"/reset-password"); err != nil {
		s.log.WithError(err).Info("password reset request failed")
	}
	s.activity.Record(ctx, models.Activity{Kind: models.ActivityPasswordReset, Email: email, IP: ip})
}

func (s *authService) Logout(ctx context.Context, accessToken, userID, ip string) {
	if accessToken != "" {
		if err := s.idp.Logout(ctx, accessToken); err != nil {
			s.log.WithError(err).Debug("provider logout failed")
		}
	}
	if userID != "" {
		s.activity.Record(ctx, models.Activity{Kind: models.ActivityLogout, UserID: userID, IP: ip})
	}
}

func tokenType(s *identity.Session) string {
	if s.AccessToken == "" {
		return ""
	}
	if s.TokenType == "" {
		return "bearer"
	}
	return s.TokenType
}
