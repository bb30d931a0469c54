package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInactiveAccount    = errors.New("account is not active")
)

// Claims porte l'identité dans le jeton.
type Claims struct {
	Name  string          `json:"name"`
	Email string          `json:"email,omitempty"`
	Role  entity.UserRole `json:"role"`
	Zone  string          `json:"zone,omitempty"`
	jwt.RegisteredClaims
}

type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      entity.Identity `json:"user"`
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	ValidateToken(tokenString string) (*Claims, error)
	// Authenticate valide le jeton puis recharge le compte : un compte
	// suspendu depuis l'émission du jeton est refusé.
	Authenticate(ctx context.Context, tokenString string) (entity.Identity, error)
}

type authService struct {
	userRepo repository.UserRepository
	audit    AuditService
	secret   []byte
	ttl      time.Duration
	logger   *zap.Logger
}

func NewAuthService(userRepo repository.UserRepository, audit AuditService, secret string, ttl time.Duration, logger *zap.Logger) AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &authService{userRepo: userRepo, audit: audit, secret: []byte(secret), ttl: ttl, logger: logger}
}

// HashPassword sert au chargement des comptes de démonstration.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != entity.UserActive {
		return nil, ErrInactiveAccount
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		Zone:  user.Zone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	// Suivi de la dernière connexion
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.audit.Record(user.ID, ActionUserLogin, "user", user.ID, "")

	return &LoginResult{Token: tokenString, ExpiresAt: expiresAt, User: user.Identity()}, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) Authenticate(ctx context.Context, tokenString string) (entity.Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return entity.Identity{}, err
	}
	user, err := s.userRepo.GetByID(ctx, claims.Subject)
	if err != nil {
		return entity.Identity{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return entity.Identity{}, ErrInvalidToken
	}
	if user.Status != entity.UserActive {
		return entity.Identity{}, ErrInactiveAccount
	}
	return user.Identity(), nil
}
