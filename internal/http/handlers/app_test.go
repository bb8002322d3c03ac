package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/queue"
)

func TestFailMapsErrors(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}
	cases := []struct {
		err  error
		code int
		body string
	}{
		{err: domain.ErrNotFound, code: http.StatusNotFound, body: "not_found"},
		{err: fmt.Errorf("lookup: %w", queue.ErrNotFound), code: http.StatusNotFound, body: "not_found"},
		{err: fmt.Errorf("%w: \"x\"", domain.ErrUnsupportedKind), code: http.StatusNotFound, body: "unsupported_kind"},
		{err: fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest), code: http.StatusBadRequest, body: "bad_request"},
		{err: queue.ErrUnavailable, code: http.StatusServiceUnavailable, body: "unavailable"},
		{err: errors.New("boom"), code: http.StatusInternalServerError, body: "internal"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		app.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		if rec.Code != tc.code {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.code)
		}
		var out map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out["error"] != tc.body {
			t.Fatalf("%v: error code = %q, want %q", tc.err, out["error"], tc.body)
		}
	}
}

func TestOwnedBy(t *testing.T) {
	if !ownedBy(json.RawMessage(`{"user_id":"alice","prompt":"x"}`), "alice") {
		t.Fatalf("expected alice to own the job")
	}
	if ownedBy(json.RawMessage(`{"user_ids":["alice"]}`), "alice") {
		t.Fatalf("broadcast payloads have no single owner")
	}
	if ownedBy(json.RawMessage(`not json`), "alice") {
		t.Fatalf("malformed data must not match")
	}
}
