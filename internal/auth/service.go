package auth

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/paystream/internal/config"
	"github.com/congo-pay/paystream/internal/identity"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token predates the user's last logout.
	ErrTokenRevoked = errors.New("token version invalidated")
)

// Service issues and verifies the token pairs used by protected routes.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService builds an auth service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims are the verified contents of a token.
type Claims struct {
	Subject string
	Version int
}

// Login issues tokens for an already authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user.ID, user.TokenVersion, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user.ID, user.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(sub string, ver int, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	return SignHS256(map[string]any{
		"sub": sub,
		"ver": ver,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}, []byte(secret))
}

// VerifyAccess checks an access token against the current token version of its user.
func (s *Service) VerifyAccess(ctx context.Context, token string) (Claims, error) {
	return s.verify(ctx, token, s.cfg.JWTSecret)
}

func (s *Service) verify(ctx context.Context, token, secret string) (Claims, error) {
	raw, err := ParseAndVerifyHS256(token, []byte(secret))
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := raw["sub"].(string)
	ver, _ := raw["ver"].(float64)
	exp, _ := raw["exp"].(float64)
	if sub == "" || int64(exp) <= s.now().Unix() {
		return Claims{}, ErrInvalidToken
	}

	user, err := s.idRepo.FindByID(ctx, sub)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if user.TokenVersion != int(ver) {
		return Claims{}, ErrTokenRevoked
	}
	return Claims{Subject: sub, Version: int(ver)}, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(claims.Subject, claims.Version, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version of the refresh token's user so every
// token issued before becomes invalid.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, claims.Subject, claims.Version+1)
}
