package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/pkg/util"
)

func domainErrCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *util.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Code
}

func TestSubmitValidation(t *testing.T) {
	svc := NewTicketService(nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	cases := []struct {
		name        string
		title       string
		description string
	}{
		{"empty title", "", "a description"},
		{"empty description", "a title", ""},
		{"whitespace only", "   ", "\t"},
		{"title too long", strings.Repeat("x", 201), "desc"},
		{"description too long", "title", strings.Repeat("x", 10001)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, SubmitInput{Title: tc.title, Description: tc.description})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if code := domainErrCode(t, err); code != "VALIDATION_FAILED" {
				t.Fatalf("code = %q, want VALIDATION_FAILED", code)
			}
		})
	}
}

func TestListValidation(t *testing.T) {
	svc := NewTicketService(nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.List(ctx, ListInput{Category: "quantum"}); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if _, err := svc.List(ctx, ListInput{CreationStatuses: []string{"exploded"}}); err == nil {
		t.Fatal("expected error for unknown creation status")
	}
}
