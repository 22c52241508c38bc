package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/registry"
)

func TestIdentitiesHandler(t *testing.T) {
	reg := registry.New()
	for _, emb := range []embedding.Embedding{{0, 0}, {5, 5}, {0.1, 0}} {
		if _, err := reg.MatchOrRegister(emb, nil); err != nil {
			t.Fatal(err)
		}
	}
	h := NewIdentitiesHandler(reg)

	t.Run("List", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/api/v1/identities", nil))

		var result struct {
			Identities []IdentityResponse `json:"identities"`
			Count      int                `json:"count"`
			Threshold  float64            `json:"threshold"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if result.Count != 2 || len(result.Identities) != 2 {
			t.Fatalf("expected 2 identities, got %d", result.Count)
		}
		if result.Identities[0].ID != 0 || result.Identities[1].ID != 1 {
			t.Errorf("unexpected order: %+v", result.Identities)
		}
		if result.Threshold != 0.6 {
			t.Errorf("expected threshold 0.6, got %v", result.Threshold)
		}
	})

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"existing", "1", http.StatusOK},
		{"missing", "42", http.StatusNotFound},
		{"invalid", "abc", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run("Get "+tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Get(rec, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"id": tc.id}))
			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}
