package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// ParsedMessage holds the fields the pipeline needs from an inbound email.
type ParsedMessage struct {
	Subject string
	Sender  string
	Body    string
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ParseMessage decodes headers and extracts the message body, preferring
// text/plain and falling back to text/html with tags stripped.
func ParseMessage(raw []byte) (ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("parse message: %w", err)
	}

	var parsed ParsedMessage
	if subject, err := mr.Header.Subject(); err == nil {
		parsed.Subject = subject
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		parsed.Sender = addrs[0].Address
	}

	var htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip undecodable parts; the rest of the message may still
			// yield a usable body.
			continue
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if parsed.Body == "" {
				data, err := io.ReadAll(part.Body)
				if err == nil {
					parsed.Body = string(data)
				}
			}
		case "text/html":
			if htmlBody == "" {
				data, err := io.ReadAll(part.Body)
				if err == nil {
					htmlBody = string(data)
				}
			}
		}
	}

	if parsed.Body == "" && htmlBody != "" {
		parsed.Body = StripHTMLTags(htmlBody)
	}
	return parsed, nil
}

// StripHTMLTags reduces an HTML body to plain text with collapsed
// whitespace.
func StripHTMLTags(html string) string {
	text := htmlTagRe.ReplaceAllString(html, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
