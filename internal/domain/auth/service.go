package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/yanqian/flarecast/pkg/errors"
)

// Service validates bearer tokens and gates premium analysis.
type Service interface {
	ValidateToken(ctx context.Context, token string) (Claims, error)
	IssueToken(userID, email string, entitled bool) (IssuedToken, error)
	Authorize(claims Claims) error
}

type service struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

const (
	tokenTypeAccess = "access"
	devSecret       = "flarecast-dev-secret"
	defaultTokenTTL = 24 * time.Hour
)

// NewService constructs a Service instance.
func NewService(cfg Config, logger *slog.Logger) Service {
	logger = logger.With("component", "auth.service")
	if strings.TrimSpace(cfg.Secret) == "" {
		logger.Warn("auth secret not configured, using development secret")
		cfg.Secret = devSecret
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &service{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *service) ValidateToken(ctx context.Context, token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing", nil)
	}
	claims, err := s.parseToken(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return Claims{}, apperrors.Wrap("invalid_token", "token type mismatch", nil)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing subject", nil)
	}
	return claims, nil
}

func (s *service) IssueToken(userID, email string, entitled bool) (IssuedToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return IssuedToken{}, apperrors.Wrap("invalid_input", "user id cannot be empty", nil)
	}
	now := s.now()
	expires := now.Add(s.cfg.TokenTTL)
	claims := tokenClaims{
		Email:     strings.TrimSpace(strings.ToLower(email)),
		Entitled:  entitled,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        newTokenID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return IssuedToken{}, apperrors.Wrap("auth_error", "failed to sign token", err)
	}
	return IssuedToken{Token: signed, ExpiresAt: expires}, nil
}

// Authorize is the subscription go/no-go check for analysis.
func (s *service) Authorize(claims Claims) error {
	if s.cfg.RequireEntitlement && !claims.Entitled {
		return apperrors.Wrap("subscription_required", "an active subscription is required for insights", nil)
	}
	return nil
}

func (s *service) parseToken(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap("invalid_token", "token invalid", nil)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing expiry", nil)
	}
	return Claims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Entitled:  claims.Entitled,
		TokenType: claims.TokenType,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Entitled  bool   `json:"entitled"`
	TokenType string `json:"type"`
}

func newTokenID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}
