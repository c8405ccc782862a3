package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"
	"github.com/boddenberg/planeja-api-go/internal/infra/observability"
	"github.com/boddenberg/planeja-api-go/internal/port"
	"github.com/boddenberg/planeja-api-go/internal/validate"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const invalidCredentialsMessage = "E-mail ou senha inválidos"

// AuthConfig holds the token and hashing parameters.
type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

// AuthService orchestrates registration, login, token rotation and the
// per-request identity check used by the middleware.
type AuthService struct {
	store      port.Store
	users      port.Cache[bool]
	metrics    *observability.Metrics
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	now        Clock
	logger     *zap.Logger
}

// NewAuthService creates a new auth service. users caches "this user id
// still exists" answers for the auth middleware.
func NewAuthService(store port.Store, users port.Cache[bool], metrics *observability.Metrics, cfg AuthConfig, logger *zap.Logger) *AuthService {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		store:      store,
		users:      users,
		metrics:    metrics,
		jwtSecret:  []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		bcryptCost: cost,
		now:        time.Now,
		logger:     logger,
	}
}

// ============================================================
// Register — POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "Este e-mail já está em uso"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	// The unique index still catches a concurrent registration.
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID))

	return s.issueTokens(ctx, u)
}

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		s.logger.Warn("login: unknown email")
		return nil, &domain.ErrUnauthorized{Message: invalidCredentialsMessage}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: wrong password", zap.String("user_id", u.ID))
		return nil, &domain.ErrUnauthorized{Message: invalidCredentialsMessage}
	}

	s.logger.Info("user logged in", zap.String("user_id", u.ID))

	return s.issueTokens(ctx, u)
}

// ============================================================
// Me — GET / DELETE /v1/auth/me
// ============================================================

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return u, nil
}

// DeleteMe removes the caller. Wallets, accounts, transactions, categories
// and refresh tokens are removed with it by the storage cascade, so no
// balance is left pointing at a deleted account.
func (s *AuthService) DeleteMe(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.DeleteMe")
	defer span.End()

	if err := requireUser(userID); err != nil {
		return err
	}

	err := s.store.RunAtomic(ctx, func(q port.Queries) error {
		u, err := q.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return &domain.ErrNotFound{Resource: "user", ID: userID}
		}
		return q.DeleteUser(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.users.Delete(userID)
	s.logger.Info("user deleted", zap.String("user_id", userID))
	return nil
}

// ============================================================
// Authenticate — used by middleware
// ============================================================

// Authenticate validates an access token and confirms its user still
// exists. Positive answers are cached; a deleted user is evicted by DeleteMe.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	claims, err := s.ValidateAccessToken(token)
	if err != nil {
		return "", err
	}
	userID := claims.Subject
	span.SetAttributes(attribute.String("user.id", userID))

	if _, ok := s.users.Get(userID); ok {
		s.cacheHit(true)
		return userID, nil
	}
	s.cacheHit(false)

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return "", &domain.ErrUnauthorized{Message: "Usuário não encontrado"}
	}

	s.users.Set(userID, true)
	return userID, nil
}

func (s *AuthService) cacheHit(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.IncrCacheHit("users")
	} else {
		s.metrics.IncrCacheMiss("users")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
