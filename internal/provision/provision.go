package provision

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/mailer"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

// Provisioner resolves or creates a requester account for an email
// address. When a new account is created and sendWelcome is set, a
// welcome mail with a password-set link goes out as a side effect.
type Provisioner interface {
	GetOrCreateUserByEmail(ctx context.Context, email string, sendWelcome bool, accountKey string) (*domain.User, string, error)
}

// Service implements Provisioner against the user store.
type Service struct {
	users  repository.UserRepository
	sender mailer.Sender
	tokens *TokenManager
	cfg    config.ProvisionConfig
	logger *zap.Logger
}

// NewService constructs the service.
func NewService(users repository.UserRepository, sender mailer.Sender, tokens *TokenManager, cfg config.ProvisionConfig, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		sender: sender,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
	}
}

const (
	usernameMaxLen   = 30
	tempPasswordLen  = 12
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*-_"
)

var usernameCleanRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// GetOrCreateUserByEmail returns the existing user for the address, or
// creates one with a bcrypt-hashed temporary password. The reset URL is
// empty for existing users.
func (s *Service) GetOrCreateUserByEmail(ctx context.Context, email string, sendWelcome bool, accountKey string) (*domain.User, string, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return existing, "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("lookup user by email: %w", err)
	}

	username, err := s.uniqueUsername(ctx, email)
	if err != nil {
		return nil, "", err
	}

	tempPassword, err := generateTemporaryPassword()
	if err != nil {
		return nil, "", fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), s.cfg.BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash temporary password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent cycle may have created the same user; re-read.
		if recheck, lookupErr := s.users.GetByEmail(ctx, email); lookupErr == nil {
			return recheck, "", nil
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("provisioned user for email sender",
		zap.String("email", email), zap.String("username", username))

	token, _, err := s.tokens.GeneratePasswordSetToken(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("sign password-set token: %w", err)
	}
	resetURL := fmt.Sprintf("%s?token=%s", s.cfg.PasswordSetURLPrefix, token)

	if sendWelcome {
		if err := s.sender.SendWelcome(ctx, accountKey, email, resetURL); err != nil {
			// The account exists either way; the user can still request a
			// new link. Log and carry on.
			s.logger.Warn("welcome mail failed", zap.String("email", email), zap.Error(err))
		}
	}
	return user, resetURL, nil
}

func (s *Service) uniqueUsername(ctx context.Context, email string) (string, error) {
	base := slugifyUsername(strings.SplitN(email, "@", 2)[0])
	username := base
	for suffix := 1; ; suffix++ {
		exists, err := s.users.UsernameExists(ctx, username)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !exists {
			return username, nil
		}
		username = fmt.Sprintf("%s%d", base, suffix)
		if len(username) > usernameMaxLen {
			username = fmt.Sprintf("%s%d", base[:usernameMaxLen-2], suffix)
		}
	}
}

func slugifyUsername(base string) string {
	base = usernameCleanRe.ReplaceAllString(strings.ToLower(base), "")
	if len(base) > usernameMaxLen {
		base = base[:usernameMaxLen]
	}
	if base == "" {
		return "user"
	}
	return base
}

func generateTemporaryPassword() (string, error) {
	for {
		buf := make([]byte, tempPasswordLen)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
			if err != nil {
				return "", err
			}
			buf[i] = passwordAlphabet[n.Int64()]
		}
		pwd := string(buf)
		if strings.ContainsAny(pwd, "abcdefghijklmnopqrstuvwxyz") &&
			strings.ContainsAny(pwd, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") &&
			strings.ContainsAny(pwd, "0123456789") {
			return pwd, nil
		}
	}
}
