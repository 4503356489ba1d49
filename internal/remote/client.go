package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spec-kit/ticket-sync/internal/config"
)

// CreateRequest carries the fields sent to the remote ticket service.
type CreateRequest struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	Urgency          string `json:"urgency"`
	AssignmentGroup  string `json:"assignment_group,omitempty"`
	CallerID         string `json:"caller_id,omitempty"`
}

// CreateResult identifies the created remote ticket.
type CreateResult struct {
	Number string
	SysID  string
}

// Client is the remote ticket service contract. Create and fetch are the
// only operations the pipeline needs.
type Client interface {
	CreateTicket(ctx context.Context, req CreateRequest) (CreateResult, error)

	// FetchStatus returns the raw remote state code for a ticket, or ""
	// when the remote record no longer exists.
	FetchStatus(ctx context.Context, sysID string) (string, error)
}

// HTTPClient talks to a ServiceNow-style table API over JSON with basic
// auth. Every call carries the configured timeout so a stuck remote call
// cannot starve a worker.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// New builds an HTTPClient from configuration.
func New(cfg config.RemoteConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}
}

type incidentRecord struct {
	Number string `json:"number"`
	SysID  string `json:"sys_id"`
	State  string `json:"state"`
}

type incidentResponse struct {
	Result incidentRecord `json:"result"`
}

type incidentListResponse struct {
	Result []incidentRecord `json:"result"`
}

// CreateTicket creates an incident and returns its number and sys id.
func (c *HTTPClient) CreateTicket(ctx context.Context, req CreateRequest) (CreateResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CreateResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/now/table/incident", bytes.NewReader(body))
	if err != nil {
		return CreateResult{}, err
	}
	httpReq.SetBasicAuth(c.username, c.password)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return CreateResult{}, fmt.Errorf("remote create: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return CreateResult{}, fmt.Errorf("remote create returned %d: %s", resp.StatusCode, excerpt)
	}

	var parsed incidentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CreateResult{}, fmt.Errorf("decode remote create response: %w", err)
	}
	if parsed.Result.Number == "" || parsed.Result.SysID == "" {
		return CreateResult{}, fmt.Errorf("remote create response missing number or sys_id")
	}
	return CreateResult{Number: parsed.Result.Number, SysID: parsed.Result.SysID}, nil
}

// FetchStatus returns the current state code of a remote ticket.
func (c *HTTPClient) FetchStatus(ctx context.Context, sysID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/now/table/incident?sysparm_query=sys_id=%s&sysparm_fields=state",
		c.baseURL, url.QueryEscape(sysID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(c.username, c.password)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("remote fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("remote fetch status returned %d: %s", resp.StatusCode, excerpt)
	}

	var parsed incidentListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode remote status response: %w", err)
	}
	if len(parsed.Result) == 0 {
		return "", nil
	}
	return parsed.Result[0].State, nil
}
