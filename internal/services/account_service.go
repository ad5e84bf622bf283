package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/smartpost/internal/auth"
	"github.com/charlesng35/smartpost/internal/docstore"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/logger"
	"github.com/charlesng35/smartpost/pkg/metrics"
	"github.com/charlesng35/smartpost/pkg/validator"
)

const (
	// AccountCollection stores credentials keyed by username.
	AccountCollection = "accounts"

	DemoUsername = "student"
	DemoPassword = "secret"
)

// TokenIssuer issues access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID string) (*auth.AccessToken, error)
}

// Account is the public view of a stored account.
type Account struct {
	Username string `json:"username"`
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	Account Account           `json:"account"`
	Token   *auth.AccessToken `json:"token"`
}

type accountRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// AccountService registers and authenticates users.
type AccountService struct {
	store      docstore.Store
	tokens     TokenIssuer
	bcryptCost int
	log        *zap.Logger
}

// AccountOption customises an AccountService.
type AccountOption func(*AccountService)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) AccountOption {
	return func(s *AccountService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// NewAccountService constructs an AccountService.
func NewAccountService(store docstore.Store, tokens TokenIssuer, opts ...AccountOption) (*AccountService, error) {
	if store == nil {
		return nil, errors.New("account service: store is required")
	}
	if tokens == nil {
		return nil, errors.New("account service: token issuer is required")
	}
	svc := &AccountService{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		log:        logger.WithModule("accounts"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Signup creates an account and signs the new user in.
func (s *AccountService) Signup(ctx context.Context, username, password string) (*AuthResult, error) {
	username, err := checkUsername(username)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperrors.NewBadRequest("Username and password are required.")
	}

	if err := s.create(ctx, username, strings.TrimSpace(password)); err != nil {
		return nil, err
	}
	return s.issue(username)
}

// Login verifies credentials and issues a token.
func (s *AccountService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if password == "" || !validator.IsIdentifier(username) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	snap, err := s.store.Get(ctx, AccountCollection, username)
	if errors.Is(err, docstore.ErrNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account service: load %s: %w", username, err)
	}

	var record accountRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return s.issue(username)
}

// EnsureDemoAccount seeds the demo account when it does not exist yet.
func (s *AccountService) EnsureDemoAccount(ctx context.Context) error {
	err := s.create(ctx, DemoUsername, DemoPassword)
	if errors.Is(err, apperrors.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("seeded demo account", zap.String("username", DemoUsername))
	return nil
}

func (s *AccountService) create(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}

	err = s.store.Create(ctx, AccountCollection, username, map[string]any{
		"username":      username,
		"password_hash": string(hash),
		"created_at":    docstore.ServerTimestamp,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return apperrors.ErrConflict.WithMessage("Username already exists.")
	}
	if err != nil {
		return fmt.Errorf("account service: create %s: %w", username, err)
	}
	return nil
}

func (s *AccountService) issue(username string) (*AuthResult, error) {
	token, err := s.tokens.GenerateAccessToken(username)
	if err != nil {
		return nil, fmt.Errorf("account service: issue token: %w", err)
	}
	return &AuthResult{Account: Account{Username: username}, Token: token}, nil
}
