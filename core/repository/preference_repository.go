package repository

import (
	"context"
	"fmt"
	"time"

	"esign-orchestrator/core/environment"
)

const (
	keyTarget  = "target"
	keyBaseURL = "base_url"
)

// PreferenceRepository stores the environment preference of one client.
// Rows are keyed by client id so a shared database never mixes clients.
type PreferenceRepository struct {
	db       *DB
	clientID string
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db *DB, clientID string) *PreferenceRepository {
	return &PreferenceRepository{db: db, clientID: clientID}
}

// Load implements environment.PreferenceStore
func (r *PreferenceRepository) Load(ctx context.Context) (environment.Preference, error) {
	query := r.db.rebind(`
		SELECT key, value
		FROM preferences
		WHERE client_id = $1 AND key IN ($2, $3)
	`)

	rows, err := r.db.QueryContext(ctx, query, r.clientID, keyTarget, keyBaseURL)
	if err != nil {
		return environment.Preference{}, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var pref environment.Preference
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return environment.Preference{}, fmt.Errorf("scan preference: %w", err)
		}
		switch key {
		case keyTarget:
			pref.Target = value
		case keyBaseURL:
			pref.BaseURL = value
		}
	}
	return pref, rows.Err()
}

// Save implements environment.PreferenceStore; both keys are written in one
// transaction.
func (r *PreferenceRepository) Save(ctx context.Context, pref environment.Preference) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.db.rebind(`
		INSERT INTO preferences (client_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)

	now := time.Now().UTC()
	for _, kv := range [][2]string{{keyTarget, pref.Target}, {keyBaseURL, pref.BaseURL}} {
		if _, err := tx.ExecContext(ctx, query, r.clientID, kv[0], kv[1], now); err != nil {
			return fmt.Errorf("upsert %s: %w", kv[0], err)
		}
	}

	return tx.Commit()
}
