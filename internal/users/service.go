package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/willsmith28/Cookbook/internal/recipes"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	maxPasswordLength = 72
	resourceUser      = "User"
	conflictUsername  = "A user with that username already exists"
)

var (
	// ErrInvalidCredentials indicates the username or password did not match.
	ErrInvalidCredentials = errors.New("users: invalid credentials")

	errMissingDatabase = errors.New("users: database connection required")
	usernamePattern    = regexp.MustCompile(`^[A-Za-z0-9@.+_-]{3,150}$`)
	noOpLogger         = zap.NewNop()
)

// Cleanup releases data another package keeps for a user. It runs inside the
// transaction that deletes the account.
type Cleanup interface {
	RemoveUser(tx *gorm.DB, userID string) error
}

// Credentials carries a username and a plaintext password.
type Credentials struct {
	Username string
	Password string
}

// ServiceConfig describes the dependencies of the account service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Logger     *zap.Logger
	IDProvider IDProvider
	Cleanups   []Cleanup
	BcryptCost int
}

// Service manages local accounts.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	logger     *zap.Logger
	ids        IDProvider
	cleanups   []Cleanup
	bcryptCost int
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		logger:     logger,
		ids:        ids,
		cleanups:   append([]Cleanup(nil), cfg.Cleanups...),
		bcryptCost: cost,
	}, nil
}

// Register creates an account. staff grants permission to edit any recipe.
func (s *Service) Register(ctx context.Context, credentials Credentials, staff bool) (User, error) {
	username := normalize(credentials.Username)
	verr := &recipes.ValidationError{}
	if !usernamePattern.MatchString(username) {
		verr.Add("username", "username must be 3 to 150 letters, digits or @.+-_ characters")
	}
	if len(credentials.Password) < minPasswordLength || len(credentials.Password) > maxPasswordLength {
		verr.Add("password", fmt.Sprintf("password must be between %d and %d characters", minPasswordLength, maxPasswordLength))
	}
	if !verr.Empty() {
		return User{}, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credentials.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: generate id: %w", err)
	}

	user := User{
		ID:           id,
		Username:     username,
		PasswordHash: string(hash),
		IsStaff:      staff,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if recipes.IsUniqueViolation(err) {
			return User{}, &recipes.ConflictError{Message: conflictUsername}
		}
		s.logger.Error("users service error",
			zap.String("operation", "users.register"),
			zap.String("reason", "user_insert_failed"),
			zap.Error(err))
		return User{}, fmt.Errorf("users: create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the account matching the credentials.
func (s *Service) Authenticate(ctx context.Context, credentials Credentials) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalize(credentials.Username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credentials.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, &recipes.NotFoundError{Resource: resourceUser}
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load user: %w", err)
	}
	return user, nil
}

// Delete removes an account after every registered cleanup ran.
func (s *Service) Delete(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", userID).Delete(&User{})
		if result.Error != nil {
			return fmt.Errorf("users: delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &recipes.NotFoundError{Resource: resourceUser}
		}
		for _, cleanup := range s.cleanups {
			if err := cleanup.RemoveUser(tx, userID); err != nil {
				return err
			}
		}
		s.logger.Info("user removed", zap.String("user_id", userID))
		return nil
	})
}

