package mailbox

import (
	"strings"
	"testing"
)

const plainMessage = "From: Alice <alice@example.com>\r\n" +
	"To: support@example.com\r\n" +
	"Subject: Printer broken\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"It makes a grinding noise.\r\n"

const htmlMessage = "From: Bob <bob@example.com>\r\n" +
	"Subject: HTML only\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<html><body><p>Server   is</p>\n<p>down</p></body></html>\r\n"

const multipartMessage = "From: Carol <carol@example.com>\r\n" +
	"Subject: Both parts\r\n" +
	"Content-Type: multipart/alternative; boundary=sep\r\n" +
	"\r\n" +
	"--sep\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"plain wins\r\n" +
	"--sep\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>html loses</p>\r\n" +
	"--sep--\r\n"

func TestParseMessagePlain(t *testing.T) {
	parsed, err := ParseMessage([]byte(plainMessage))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if parsed.Sender != "alice@example.com" {
		t.Fatalf("sender = %q", parsed.Sender)
	}
	if parsed.Subject != "Printer broken" {
		t.Fatalf("subject = %q", parsed.Subject)
	}
	if !strings.Contains(parsed.Body, "grinding noise") {
		t.Fatalf("body = %q", parsed.Body)
	}
}

func TestParseMessageHTMLFallback(t *testing.T) {
	parsed, err := ParseMessage([]byte(htmlMessage))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if parsed.Body != "Server is down" {
		t.Fatalf("body = %q, want stripped text", parsed.Body)
	}
}

func TestParseMessagePrefersPlainPart(t *testing.T) {
	parsed, err := ParseMessage([]byte(multipartMessage))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if !strings.Contains(parsed.Body, "plain wins") {
		t.Fatalf("body = %q, want the text/plain part", parsed.Body)
	}
	if strings.Contains(parsed.Body, "html") {
		t.Fatalf("body = %q, must not contain the html part", parsed.Body)
	}
}

func TestStripHTMLTags(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<p>hello</p>", "hello"},
		{"  <div>a</div>\n<div>b</div> ", "a b"},
		{"no tags", "no tags"},
		{"<br/>", ""},
	}
	for _, tc := range cases {
		if got := StripHTMLTags(tc.in); got != tc.want {
			t.Errorf("StripHTMLTags(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
