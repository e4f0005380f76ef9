package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials covers both unknown emails and wrong passwords so
	// responses do not reveal which accounts exist.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	// ErrEmailTaken indicates a registration against an existing email.
	ErrEmailTaken = errors.New("auth: email already registered")

	errMissingAuthDatabase = errors.New("auth: database connection required")
	errMissingEmail        = errors.New("auth: email required")
	errMissingPassword     = errors.New("auth: password required")
)

// ServiceConfig describes the dependencies of the sign-in service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service performs guest and credential sign-in.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the sign-in service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingAuthDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// SignInGuest issues a fresh anonymous identity. Guests leave no account row;
// their id lives only in the session token and on the results they record.
func (s *Service) SignInGuest(_ context.Context) (UserHandle, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return UserHandle{}, fmt.Errorf("auth: guest id generation failed: %w", err)
	}
	return UserHandle{UserID: id.String(), Guest: true}, nil
}

// SignInWithCredentials verifies an email/password pair against the stored
// account.
func (s *Service) SignInWithCredentials(ctx context.Context, email, password string) (UserHandle, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return UserHandle{}, errMissingEmail
	}
	if password == "" {
		return UserHandle{}, errMissingPassword
	}

	var account Account
	err := s.db.WithContext(ctx).
		Where("email = ?", normalized).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserHandle{}, ErrInvalidCredentials
	}
	if err != nil {
		return UserHandle{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("credential sign-in rejected", zap.String("email", normalized))
		return UserHandle{}, ErrInvalidCredentials
	}

	_ = s.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", account.UserID).
		Update("last_seen_at", s.now()).Error

	return UserHandle{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}, nil
}

// Register creates a credential account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (UserHandle, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return UserHandle{}, errMissingEmail
	}
	if password == "" {
		return UserHandle{}, errMissingPassword
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&Account{}).
		Where("email = ?", normalized).
		Count(&existing).Error; err != nil {
		return UserHandle{}, err
	}
	if existing > 0 {
		return UserHandle{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return UserHandle{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return UserHandle{}, err
	}

	account := Account{
		UserID:       id.String(),
		Email:        normalized,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		LastSeenAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return UserHandle{}, err
	}

	s.logger.Info("account registered", zap.String("user_id", account.UserID))
	return UserHandle{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}, nil
}
