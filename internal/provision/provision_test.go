package provision

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*domain.User)}
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (s *fakeUserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.New()
	copied := *user
	s.users[strings.ToLower(user.Email)] = &copied
	return nil
}

func (s *fakeUserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

type fakeWelcomeSender struct {
	mu       sync.Mutex
	welcomes []string
	urls     []string
}

func (f *fakeWelcomeSender) SendReply(ctx context.Context, accountKey, ticketNumber, to, subject string) error {
	return nil
}

func (f *fakeWelcomeSender) SendWelcome(ctx context.Context, accountKey, to, resetURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomes = append(f.welcomes, to)
	f.urls = append(f.urls, resetURL)
	return nil
}

func newTestService(store *fakeUserStore, sender *fakeWelcomeSender) *Service {
	cfg := config.ProvisionConfig{
		TokenSecret:          "test-secret",
		PasswordSetTTLHours:  72,
		BcryptCost:           bcrypt.MinCost,
		PasswordSetURLPrefix: "https://portal.example.com/password/set",
	}
	return NewService(store, sender, NewTokenManager(cfg.TokenSecret, cfg.PasswordSetTTLHours), cfg, zap.NewNop())
}

func TestGetOrCreateUserCreatesAccount(t *testing.T) {
	store := newFakeUserStore()
	sender := &fakeWelcomeSender{}
	svc := newTestService(store, sender)

	user, resetURL, err := svc.GetOrCreateUserByEmail(context.Background(), "Alice.Smith@Example.com", true, "support")
	if err != nil {
		t.Fatalf("GetOrCreateUserByEmail: %v", err)
	}
	if user.ID == uuid.Nil {
		t.Fatal("expected user id")
	}
	if user.Username != "alice.smith" {
		t.Fatalf("username = %q, want alice.smith", user.Username)
	}
	if user.PasswordHash == "" {
		t.Fatal("expected hashed temporary password")
	}
	if !strings.HasPrefix(resetURL, "https://portal.example.com/password/set?token=") {
		t.Fatalf("reset url = %q", resetURL)
	}
	if len(sender.welcomes) != 1 || sender.welcomes[0] != "Alice.Smith@Example.com" {
		t.Fatalf("welcomes = %v", sender.welcomes)
	}
}

func TestGetOrCreateUserReturnsExisting(t *testing.T) {
	store := newFakeUserStore()
	sender := &fakeWelcomeSender{}
	svc := newTestService(store, sender)

	first, _, err := svc.GetOrCreateUserByEmail(context.Background(), "bob@example.com", true, "support")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	second, resetURL, err := svc.GetOrCreateUserByEmail(context.Background(), "BOB@example.com", true, "support")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("case-insensitive lookup must return the same user")
	}
	if resetURL != "" {
		t.Fatalf("reset url = %q, want empty for existing user", resetURL)
	}
	if len(sender.welcomes) != 1 {
		t.Fatalf("sent %d welcome mails, want 1", len(sender.welcomes))
	}
}

func TestUniqueUsernameSuffixing(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, &fakeWelcomeSender{})
	ctx := context.Background()

	first, _, _ := svc.GetOrCreateUserByEmail(ctx, "dev@one.example.com", false, "support")
	second, _, _ := svc.GetOrCreateUserByEmail(ctx, "dev@two.example.com", false, "support")

	if first.Username != "dev" {
		t.Fatalf("first username = %q, want dev", first.Username)
	}
	if second.Username != "dev1" {
		t.Fatalf("second username = %q, want dev1", second.Username)
	}
}

func TestSlugifyUsername(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice.Smith", "alice.smith"},
		{"bob+tag", "bobtag"},
		{"UPPER_case-ok", "upper_case-ok"},
		{"ロボット", "user"},
		{"", "user"},
	}
	for _, tc := range cases {
		if got := slugifyUsername(tc.in); got != tc.want {
			t.Errorf("slugifyUsername(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateTemporaryPassword(t *testing.T) {
	pwd, err := generateTemporaryPassword()
	if err != nil {
		t.Fatalf("generateTemporaryPassword: %v", err)
	}
	if len(pwd) != tempPasswordLen {
		t.Fatalf("len = %d, want %d", len(pwd), tempPasswordLen)
	}
	if !strings.ContainsAny(pwd, "abcdefghijklmnopqrstuvwxyz") ||
		!strings.ContainsAny(pwd, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") ||
		!strings.ContainsAny(pwd, "0123456789") {
		t.Fatalf("password %q missing required character classes", pwd)
	}
}

func TestPasswordSetTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	userID := uuid.New()

	token, expiresAt, err := tm.GeneratePasswordSetToken(userID, "carol@example.com")
	if err != nil {
		t.Fatalf("GeneratePasswordSetToken: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatal("expected expiry time")
	}

	claims, err := tm.ParsePasswordSetToken(token)
	if err != nil {
		t.Fatalf("ParsePasswordSetToken: %v", err)
	}
	if claims.UserID != userID.String() {
		t.Fatalf("uid = %q, want %q", claims.UserID, userID)
	}
	if claims.Email != "carol@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
}

func TestPasswordSetTokenWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", 1).GeneratePasswordSetToken(uuid.New(), "x@example.com")
	if err != nil {
		t.Fatalf("GeneratePasswordSetToken: %v", err)
	}
	if _, err := NewTokenManager("secret-b", 1).ParsePasswordSetToken(token); err == nil {
		t.Fatal("expected verification to fail with the wrong secret")
	}
}
