package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spec-kit/ticket-sync/internal/config"
)

func TestPredictCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict/category" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "vpn is down" {
			t.Errorf("text = %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "network", "confidence": 0.93})
	}))
	defer server.Close()

	c := New(config.ClassifierConfig{BaseURL: server.URL, TimeoutSeconds: 2})
	pred, err := c.PredictCategory(context.Background(), "vpn is down")
	if err != nil {
		t.Fatalf("PredictCategory: %v", err)
	}
	if pred.Label != "network" || pred.Confidence != 0.93 {
		t.Fatalf("prediction = %+v", pred)
	}
}

func TestPredictPriorityPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict/priority" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "high", "confidence": 0.7})
	}))
	defer server.Close()

	c := New(config.ClassifierConfig{BaseURL: server.URL, TimeoutSeconds: 2})
	pred, err := c.PredictPriority(context.Background(), "everything is broken")
	if err != nil {
		t.Fatalf("PredictPriority: %v", err)
	}
	if pred.Label != "high" {
		t.Fatalf("label = %q", pred.Label)
	}
}

func TestPredictServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(config.ClassifierConfig{BaseURL: server.URL, TimeoutSeconds: 2})
	if _, err := c.PredictCategory(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 503")
	}
}
