package mailbox

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/spec-kit/ticket-sync/internal/config"
)

// IMAPClient dials the configured IMAP server. Implements Client.
type IMAPClient struct {
	cfg config.MailboxConfig
}

// NewIMAPClient builds a client from configuration.
func NewIMAPClient(cfg config.MailboxConfig) *IMAPClient {
	return &IMAPClient{cfg: cfg}
}

// Connect dials and authenticates, returning a live session.
func (c *IMAPClient) Connect(ctx context.Context) (Session, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	var (
		conn *imapclient.Client
		err  error
	)
	if c.cfg.UseTLS {
		conn, err = imapclient.DialTLS(addr, nil)
	} else {
		conn, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}

	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	return &imapSession{conn: conn}, nil
}

type imapSession struct {
	conn *imapclient.Client
}

func (s *imapSession) SelectFolder(name string) error {
	if _, err := s.conn.Select(name, false); err != nil {
		return fmt.Errorf("select folder %s: %w", name, err)
	}
	return nil
}

func (s *imapSession) SearchUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	return uids, nil
}

func (s *imapSession) Fetch(uid uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.conn.UidFetch(seqset, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read message body: %w", err)
		}
		raw = data
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("uid %d returned no body", uid)
	}
	return raw, nil
}

func (s *imapSession) MarkSeen(uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := s.conn.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("mark seen uid %d: %w", uid, err)
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.conn.Logout()
}
