package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/sqlinline"
)

const (
	ProviderQwen = "qwen"

	cacheTTL = time.Minute
)

// Integration describes a stored provider credential without exposing it.
type Integration struct {
	Provider  string    `json:"provider"`
	UpdatedAt time.Time `json:"updated_at"`
}

type cached struct {
	token     string
	fetchedAt time.Time
}

// Store keeps provider API keys in integration_tokens. Lookups are cached for
// a minute so provider calls do not hit the database every attempt.
type Store struct {
	sql infra.SQLExecutor
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now, cache: map[string]cached{}}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	provider = normalize(provider)
	s.mu.Lock()
	entry, ok := s.cache[provider]
	s.mu.Unlock()
	if ok && s.now().Sub(entry.fetchedAt) < cacheTTL {
		return entry.token, nil
	}

	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if !infra.IsNoRows(err) {
			return "", err
		}
		token = ""
	}
	token = strings.TrimSpace(token)

	s.mu.Lock()
	s.cache[provider] = cached{token: token, fetchedAt: s.now()}
	s.mu.Unlock()
	return token, nil
}

// Resolve prefers the stored token and falls back to envValue.
func (s *Store) Resolve(ctx context.Context, provider, envValue string) (string, error) {
	token, err := s.Token(ctx, provider)
	if err != nil {
		return "", fmt.Errorf("credentials: lookup %s: %w", provider, err)
	}
	if token != "" {
		return token, nil
	}
	return strings.TrimSpace(envValue), nil
}

// SetToken stores or rotates the token for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	provider = normalize(provider)
	token = strings.TrimSpace(token)
	if provider == "" {
		return errors.New("provider is required")
	}
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	if err := s.upsert(ctx, provider, token, props); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, provider)
	s.mu.Unlock()
	return nil
}

// ListProviders reports which providers have a stored credential.
func (s *Store) ListProviders(ctx context.Context) ([]Integration, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationProviders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		var item Integration
		if err := rows.Scan(&item.Provider, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
