package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/port"
	"github.com/boddenberg/planeja-api-go/internal/validate"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ============================================================
// Refresh — POST /v1/auth/refresh
// ============================================================

// Refresh rotates a refresh token: the presented one is revoked and a new
// access/refresh pair is issued.
func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	tokenHash := hashToken(req.RefreshToken)

	// Rotation: a refresh token is single-use, expired or not. Lookup and
	// revoke share one atomic unit and only the caller whose DELETE removed
	// the row may continue, so concurrent reuse yields one session at most.
	var stored *domain.RefreshToken
	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		t, err := q.GetRefreshToken(ctx, tokenHash)
		if err != nil {
			return fmt.Errorf("get refresh token: %w", err)
		}
		if t == nil {
			return nil
		}
		revoked, err := q.RevokeRefreshToken(ctx, tokenHash)
		if err != nil {
			return err
		}
		if revoked {
			stored = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, &domain.ErrUnauthorized{Message: "Token de atualização inválido"}
	}

	if stored.ExpiresAt.Before(s.now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrUnauthorized{Message: "Token de atualização expirado"}
	}

	u, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, &domain.ErrUnauthorized{Message: "Token de atualização inválido"}
	}

	return s.issueTokens(ctx, u)
}

// ============================================================
// Logout — POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// ============================================================
// ValidateAccessToken — used by Authenticate
// ============================================================

// JWTClaims represents the custom claims in access tokens.
// The user id travels in the registered "sub" claim.
type JWTClaims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}

	if claims.Type != "access" || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}

	return claims, nil
}

// ============================================================
// Internal JWT helpers
// ============================================================

func (s *AuthService) issueTokens(ctx context.Context, u *domain.User) (*domain.AuthResponse, error) {
	accessToken, err := s.signAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	err = s.store.StoreRefreshToken(ctx, &domain.RefreshToken{
		TokenHash: refreshHash,
		UserID:    u.ID,
		ExpiresAt: s.now().Add(s.refreshTTL).UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.users.Set(u.ID, true)

	return &domain.AuthResponse{
		User:         domain.UserRef{ID: u.ID, Name: u.Name, Email: u.Email},
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

func (s *AuthService) signAccessToken(u *domain.User) (string, error) {
	now := s.now()
	claims := JWTClaims{
		Email: u.Email,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "planeja-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func generateRefreshToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	hashed = hashToken(raw)
	return raw, hashed, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
