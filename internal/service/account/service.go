// Package account handles registration, login and admin provisioning.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/auth"
	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
	"github.com/zhouzirui/drafting/backend/internal/store"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
)

var (
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	letterPattern = regexp.MustCompile(`[A-Za-z]`)
	digitPattern  = regexp.MustCompile(`\d`)
)

// Repository is the user and audit storage the service needs.
type Repository interface {
	CreateUserWithAudit(ctx context.Context, u user.User, event audit.Event) (user.User, error)
	FindUserByLogin(ctx context.Context, login string) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	AdminExists(ctx context.Context) (bool, error)
	RecordAudit(ctx context.Context, event audit.Event) error
}

// Credentials is the register/admin-create payload.
type Credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is a user plus a freshly issued access token.
type Session struct {
	User        user.User `json:"user"`
	AccessToken string    `json:"access_token"`
}

// Service manages accounts.
type Service struct {
	repo       Repository
	secret     []byte
	ttl        time.Duration
	bcryptCost []int
	logger     logging.Logger
}

// NewService creates an account service signing tokens with secret.
func NewService(repo Repository, secret []byte, ttl time.Duration, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{repo: repo, secret: secret, ttl: ttl, logger: logger}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = []int{cost}
	return s
}

// Register creates a USER account and returns a session.
func (s *Service) Register(ctx context.Context, in Credentials) (Session, error) {
	u, err := s.create(ctx, in, user.RoleUser, audit.ActionUserRegistered, "New user registered: %s")
	if err != nil {
		return Session{}, err
	}
	return s.issue(u)
}

// CreateAdmin creates an ADMIN account on behalf of an existing admin.
func (s *Service) CreateAdmin(ctx context.Context, in Credentials) (user.User, error) {
	return s.create(ctx, in, user.RoleAdmin, audit.ActionAdminUserCreated, "Admin user created: %s")
}

// BootstrapAdmin creates the first admin when none exists. It reports
// whether an account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, in Credentials) (bool, error) {
	exists, err := s.repo.AdminExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	taken, err := s.repo.UserExists(ctx, strings.TrimSpace(in.Username), strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		return false, err
	}
	if taken {
		s.logger.WithField("username", in.Username).Warn("admin bootstrap skipped: user already exists")
		return false, nil
	}

	u, err := s.create(ctx, in, user.RoleAdmin, audit.ActionAdminBootstrapCreated, "Bootstrap admin created: %s")
	if err != nil {
		return false, err
	}
	s.logger.WithField("user_id", u.ID).Info("bootstrap admin created")
	return true, nil
}

// Login authenticates by username or email.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Session{}, apperr.Invalid("", "Username and password are required")
	}

	u, err := s.repo.FindUserByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		event := audit.New(u.ID, audit.ActionLoginFailed).WithDetails("Failed login attempt for user: " + u.Username)
		if err := s.repo.RecordAudit(ctx, event); err != nil {
			s.logger.WithError(err).Error("failed to record login failure")
		}
		return Session{}, ErrInvalidCredentials
	}

	event := audit.New(u.ID, audit.ActionLoginSuccess).WithDetails("User logged in: " + u.Username)
	if err := s.repo.RecordAudit(ctx, event); err != nil {
		return Session{}, fmt.Errorf("record login: %w", err)
	}
	return s.issue(u)
}

// Me returns the account for id.
func (s *Service) Me(ctx context.Context, id int64) (user.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return user.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *Service) create(ctx context.Context, in Credentials, role user.Role, action, detailFormat string) (user.User, error) {
	username, email, err := validateCredentials(in)
	if err != nil {
		return user.User{}, err
	}

	exists, err := s.repo.UserExists(ctx, username, email)
	if err != nil {
		return user.User{}, fmt.Errorf("check user: %w", err)
	}
	if exists {
		return user.User{}, ErrUserExists
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost...)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUserWithAudit(ctx,
		user.User{Username: username, Email: email, PasswordHash: hash, Role: role},
		audit.Event{Action: action}.WithDetails(fmt.Sprintf(detailFormat, username)),
	)
	if errors.Is(err, store.ErrDuplicate) {
		return user.User{}, ErrUserExists
	}
	if err != nil {
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Service) issue(u user.User) (Session, error) {
	token, err := auth.GenerateJWT(u.ID, u.Role, s.secret, s.ttl)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{User: u, AccessToken: token}, nil
}

func validateCredentials(in Credentials) (string, string, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if username == "" || email == "" || in.Password == "" {
		return "", "", apperr.Invalid("", "Username, email, and password are required")
	}
	if n := utf8.RuneCountInString(username); n < 3 || n > 100 {
		return "", "", apperr.Invalid("", "Username must be between 3 and 100 characters")
	}
	if !emailPattern.MatchString(email) {
		return "", "", apperr.Invalid("", "Invalid email format")
	}
	if err := validatePassword(in.Password); err != nil {
		return "", "", err
	}
	return username, email, nil
}

func validatePassword(password string) error {
	switch {
	case len(password) < 8:
		return apperr.Invalid("", "Password must be at least 8 characters long")
	case !letterPattern.MatchString(password):
		return apperr.Invalid("", "Password must contain at least one letter")
	case !digitPattern.MatchString(password):
		return apperr.Invalid("", "Password must contain at least one digit")
	}
	return nil
}
