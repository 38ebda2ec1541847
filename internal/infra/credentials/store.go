// Package credentials keeps provider API keys in the integration_tokens
// table so kiosks can be provisioned without redeploying their env.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"boothvideo/internal/infra"
	"boothvideo/internal/sqlinline"
)

const (
	ProviderArk = "ark"
)

var ErrEmptyKey = errors.New("ark api key is required")

type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: time.Now}
}

// ArkAPIKey returns the stored ModelArk key, or "" when none is stored.
func (s *Store) ArkAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderArk)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetArkAPIKey(ctx context.Context, key, setBy string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	props := map[string]any{"set_at": s.now().UTC().Format(time.RFC3339)}
	if setBy = strings.TrimSpace(setBy); setBy != "" {
		props["set_by"] = setBy
	}
	return s.upsert(ctx, ProviderArk, key, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// ResolveArkAPIKey prefers the configured key and falls back to the store.
func ResolveArkAPIKey(ctx context.Context, configured string, store *Store) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	if store == nil {
		return "", nil
	}
	return store.ArkAPIKey(ctx)
}
