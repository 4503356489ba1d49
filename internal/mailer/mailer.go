package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/spec-kit/ticket-sync/internal/config"
)

// Sender delivers outbound support mail. Accounts are addressed by key so
// additional mailboxes can be configured without touching call sites.
type Sender interface {
	// SendReply acknowledges an email-origin ticket with its remote
	// ticket number.
	SendReply(ctx context.Context, accountKey, ticketNumber, to, subject string) error

	// SendWelcome mails a newly provisioned user their password-set link.
	SendWelcome(ctx context.Context, accountKey, to, resetURL string) error
}

// Client sends mail over SMTP via gomail.
type Client struct {
	accounts map[string]config.SMTPConfig
}

// New builds a client from the configured support account.
func New(cfg config.SMTPConfig) *Client {
	return &Client{accounts: map[string]config.SMTPConfig{cfg.AccountKey: cfg}}
}

// SendReply sends the ticket-number acknowledgment.
func (c *Client) SendReply(ctx context.Context, accountKey, ticketNumber, to, subject string) error {
	body := fmt.Sprintf(
		"Hello,\r\n\r\nYour support request has been registered as ticket %s.\r\n"+
			"We will follow up on this ticket; replies to this address are monitored.\r\n\r\n"+
			"IT Support\r\n", ticketNumber)
	return c.send(ctx, accountKey, to, "Re: "+subject, body)
}

// SendWelcome sends the account-created mail with the password-set link.
func (c *Client) SendWelcome(ctx context.Context, accountKey, to, resetURL string) error {
	body := fmt.Sprintf(
		"Hello,\r\n\r\nAn account has been created for you on the IT support portal.\r\n"+
			"Set your password here: %s\r\n\r\nIT Support\r\n", resetURL)
	return c.send(ctx, accountKey, to, "Your IT support account", body)
}

func (c *Client) send(ctx context.Context, accountKey, to, subject, body string) error {
	cfg, ok := c.accounts[accountKey]
	if !ok {
		return fmt.Errorf("mail account %q is not configured", accountKey)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.UseTLS {
		dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}

	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(msg)
	}()

	wait := time.Duration(cfg.TimeoutSeconds) * time.Second
	if wait <= 0 {
		wait = 10 * time.Second
	}
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > 0 && remaining < wait {
			wait = remaining
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}
