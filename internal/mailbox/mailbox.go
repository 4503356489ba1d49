package mailbox

import "context"

// Client opens sessions against the monitored mailbox. Connect may fail
// at any time; callers own the retry policy.
type Client interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is one authenticated mailbox connection. Sequential use within
// a polling cycle; not safe for concurrent use.
type Session interface {
	SelectFolder(name string) error

	// SearchUnseen returns the UIDs of messages not yet marked seen.
	SearchUnseen() ([]uint32, error)

	// Fetch returns the raw RFC 822 message for a UID.
	Fetch(uid uint32) ([]byte, error)

	// MarkSeen flags the message as seen. Callers must only do this after
	// local persistence succeeded: the unseen flag is what drives
	// crash-retry of a partially processed message.
	MarkSeen(uid uint32) error

	Close() error
}
