package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/mailbox"
	ticketsync "github.com/spec-kit/ticket-sync/internal/sync"
)

const rawMessage = "From: Alice <alice@example.com>\r\n" +
	"To: support@example.com\r\n" +
	"Subject: Printer broken\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"It makes a grinding noise.\r\n"

const rawMessageNoSender = "To: support@example.com\r\n" +
	"Subject: Anonymous\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"who am I\r\n"

type fakeSession struct {
	mu       sync.Mutex
	messages map[uint32][]byte
	seen     []uint32
	fetchErr map[uint32]error
	closed   bool
}

func (s *fakeSession) SelectFolder(name string) error { return nil }

func (s *fakeSession) SearchUnseen() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var uids []uint32
	for uid := range s.messages {
		uids = append(uids, uid)
	}
	return uids, nil
}

func (s *fakeSession) Fetch(uid uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetchErr[uid]; err != nil {
		return nil, err
	}
	return s.messages[uid], nil
}

func (s *fakeSession) MarkSeen(uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, uid)
	delete(s.messages, uid)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) seenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type fakeMailboxClient struct {
	session    *fakeSession
	connectErr error
}

func (c *fakeMailboxClient) Connect(ctx context.Context) (mailbox.Session, error) {
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return c.session, nil
}

type fakeIngestor struct {
	mu     sync.Mutex
	inputs []ticketsync.EmailInput
	err    error
	seen   map[string]bool
}

func (f *fakeIngestor) IngestEmail(ctx context.Context, input ticketsync.EmailInput) (*domain.Ticket, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	f.inputs = append(f.inputs, input)
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	created := !f.seen[input.UID]
	f.seen[input.UID] = true
	return &domain.Ticket{ID: uuid.New(), Title: input.Subject, Origin: domain.OriginEmail}, created, nil
}

type fakeProvisioner struct {
	mu     sync.Mutex
	emails []string
	err    error
}

func (f *fakeProvisioner) GetOrCreateUserByEmail(ctx context.Context, email string, sendWelcome bool, accountKey string) (*domain.User, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	f.emails = append(f.emails, email)
	return &domain.User{ID: uuid.New(), Email: email}, "", nil
}

func newTestGateway(client mailbox.Client, ingestor Ingestor, provisioner *fakeProvisioner) *Gateway {
	return NewGateway(client, ingestor, provisioner, Config{
		Folder:     "INBOX",
		AccountKey: "support",
	}, zap.NewNop())
}

func TestPollOnceCreatesTickets(t *testing.T) {
	session := &fakeSession{messages: map[uint32][]byte{
		11: []byte(rawMessage),
	}}
	ingestor := &fakeIngestor{}
	provisioner := &fakeProvisioner{}
	gw := newTestGateway(&fakeMailboxClient{session: session}, ingestor, provisioner)

	if err := gw.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if len(ingestor.inputs) != 1 {
		t.Fatalf("ingested %d messages, want 1", len(ingestor.inputs))
	}
	input := ingestor.inputs[0]
	if input.UID != "11" {
		t.Fatalf("uid = %q, want 11", input.UID)
	}
	if input.Sender != "alice@example.com" {
		t.Fatalf("sender = %q, want alice@example.com", input.Sender)
	}
	if input.Subject != "Printer broken" {
		t.Fatalf("subject = %q, want Printer broken", input.Subject)
	}
	if session.seenCount() != 1 {
		t.Fatalf("marked %d seen, want 1", session.seenCount())
	}
	if len(provisioner.emails) != 1 || provisioner.emails[0] != "alice@example.com" {
		t.Fatalf("provisioned %v, want alice@example.com", provisioner.emails)
	}
	if !session.closed {
		t.Fatal("session must be closed after the cycle")
	}
}

func TestPollOnceIsolatesBadMessages(t *testing.T) {
	session := &fakeSession{
		messages: map[uint32][]byte{
			1: []byte(rawMessage),
			2: []byte(rawMessageNoSender),
			3: []byte(rawMessage),
		},
	}
	ingestor := &fakeIngestor{}
	gw := newTestGateway(&fakeMailboxClient{session: session}, ingestor, &fakeProvisioner{})

	if err := gw.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if len(ingestor.inputs) != 2 {
		t.Fatalf("ingested %d messages, want 2 (bad one skipped)", len(ingestor.inputs))
	}
	// The senderless message stays unseen for inspection.
	if session.seenCount() != 2 {
		t.Fatalf("marked %d seen, want 2", session.seenCount())
	}
}

func TestPollOnceLeavesUnseenOnIngestFailure(t *testing.T) {
	session := &fakeSession{messages: map[uint32][]byte{5: []byte(rawMessage)}}
	ingestor := &fakeIngestor{err: errors.New("db down")}
	gw := newTestGateway(&fakeMailboxClient{session: session}, ingestor, &fakeProvisioner{})

	if err := gw.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if session.seenCount() != 0 {
		t.Fatal("message must stay unseen when persistence fails")
	}
}

func TestPollOnceConnectFailure(t *testing.T) {
	gw := newTestGateway(&fakeMailboxClient{connectErr: errors.New("refused")}, &fakeIngestor{}, &fakeProvisioner{})
	if err := gw.pollOnce(context.Background()); err == nil {
		t.Fatal("expected connect error to propagate")
	}
}

func TestPollOnceDuplicateStillMarkedSeen(t *testing.T) {
	session := &fakeSession{messages: map[uint32][]byte{9: []byte(rawMessage)}}
	ingestor := &fakeIngestor{seen: map[string]bool{"9": true}}
	gw := newTestGateway(&fakeMailboxClient{session: session}, ingestor, &fakeProvisioner{})

	if err := gw.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	// Dedup is a success: the message must not be re-fetched forever.
	if session.seenCount() != 1 {
		t.Fatalf("marked %d seen, want 1", session.seenCount())
	}
}
