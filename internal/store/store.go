package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/jarvis/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LEARNED COMMAND OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// RecordCommand appends a learned command to the log and upserts its intent
// pattern, both in one transaction. The log row is never modified afterwards;
// repeated learning of the same utterance appends a new row and the lookup
// cache is updated so the newest row wins.
func (s *Store) RecordCommand(ctx context.Context, cmd *types.LearnedCommand) error {
	if cmd.UtteranceText == "" {
		return fmt.Errorf("utterance text cannot be empty")
	}
	if cmd.Intent == "" || cmd.Action == "" {
		return fmt.Errorf("intent and action cannot be empty")
	}

	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.NormalizedText == "" {
		cmd.NormalizedText = types.NormalizeUtterance(cmd.UtteranceText)
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}

	paramsJSON, err := json.Marshal(orEmpty(cmd.Parameters))
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO learned_commands (
				id, utterance_text, normalized_text, intent, action,
				parameters, confidence, source, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cmd.ID, cmd.UtteranceText, cmd.NormalizedText, cmd.Intent, cmd.Action,
			string(paramsJSON), cmd.Confidence, string(cmd.Source), cmd.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert learned command: %w", err)
		}

		return s.upsertPattern(ctx, tx, cmd)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[cmd.NormalizedText] = *cmd
	s.mu.Unlock()

	log.Debug().
		Str("intent", cmd.Intent).
		Str("normalized", cmd.NormalizedText).
		Msg("learned command recorded")

	return nil
}

// upsertPattern maintains the intent_patterns materialized view for one new
// log row. Re-running it for the same row is idempotent at the view level:
// the count reflects log rows, and the log insert and the upsert share a
// transaction.
func (s *Store) upsertPattern(ctx context.Context, tx *sql.Tx, cmd *types.LearnedCommand) error {
	key := patternKey(cmd.NormalizedText, cmd.Intent)

	var examplesJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT examples FROM intent_patterns WHERE pattern_key = ?`, key,
	).Scan(&examplesJSON)

	switch {
	case err == sql.ErrNoRows:
		examples, merr := json.Marshal([]string{cmd.UtteranceText})
		if merr != nil {
			return fmt.Errorf("marshal examples: %w", merr)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO intent_patterns (
				pattern_key, intent, occurrence_count, examples, created_at, updated_at
			) VALUES (?, ?, 1, ?, ?, ?)`,
			key, cmd.Intent, string(examples), cmd.CreatedAt, cmd.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert intent pattern: %w", err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("query intent pattern: %w", err)
	}

	var examples []string
	if uerr := json.Unmarshal([]byte(examplesJSON), &examples); uerr != nil {
		// Corrupt derived state is rebuilt, not fatal.
		examples = nil
	}
	if !containsString(examples, cmd.UtteranceText) {
		examples = append(examples, cmd.UtteranceText)
		if len(examples) > s.maxExamples {
			examples = examples[len(examples)-s.maxExamples:]
		}
	}

	updated, merr := json.Marshal(examples)
	if merr != nil {
		return fmt.Errorf("marshal examples: %w", merr)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE intent_patterns
		SET occurrence_count = occurrence_count + 1,
		    examples = ?,
		    updated_at = ?
		WHERE pattern_key = ?`,
		string(updated), time.Now(), key,
	)
	if err != nil {
		return fmt.Errorf("update intent pattern: %w", err)
	}

	return nil
}

// Lookup returns the most recently learned command for a normalized
// utterance. Served from the in-memory cache; never touches disk.
func (s *Store) Lookup(normalized string) (types.LearnedCommand, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cmd, ok := s.cache[normalized]
	return cmd, ok
}

// rebuildCache replays the command log in insertion order so the newest row
// per normalized utterance wins. Called once at startup.
func (s *Store) rebuildCache(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, utterance_text, normalized_text, intent, action,
		       parameters, confidence, source, created_at
		FROM learned_commands
		ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return fmt.Errorf("query learned commands: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]types.LearnedCommand)
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return err
		}
		cache[cmd.NormalizedText] = cmd
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate learned commands: %w", err)
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()

	log.Info().Int("commands", len(cache)).Msg("lookup cache rebuilt")
	return nil
}

// RecentCommands returns up to limit log entries, newest first.
func (s *Store) RecentCommands(ctx context.Context, limit int) ([]types.LearnedCommand, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, utterance_text, normalized_text, intent, action,
		       parameters, confidence, source, created_at
		FROM learned_commands
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query learned commands: %w", err)
	}
	defer rows.Close()

	var out []types.LearnedCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTENT PATTERN OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// PatternsFor returns the materialized patterns for one intent.
func (s *Store) PatternsFor(ctx context.Context, intent string) ([]types.IntentPattern, error) {
	return s.queryPatterns(ctx,
		`SELECT pattern_key, intent, occurrence_count, examples, created_at, updated_at
		 FROM intent_patterns WHERE intent = ? ORDER BY occurrence_count DESC`, intent)
}

// Patterns returns every materialized pattern, most frequent first.
func (s *Store) Patterns(ctx context.Context) ([]types.IntentPattern, error) {
	return s.queryPatterns(ctx,
		`SELECT pattern_key, intent, occurrence_count, examples, created_at, updated_at
		 FROM intent_patterns ORDER BY occurrence_count DESC`)
}

func (s *Store) queryPatterns(ctx context.Context, query string, args ...any) ([]types.IntentPattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query intent patterns: %w", err)
	}
	defer rows.Close()

	var out []types.IntentPattern
	for rows.Next() {
		var p types.IntentPattern
		var examplesJSON string
		if err := rows.Scan(&p.PatternKey, &p.Intent, &p.OccurrenceCount,
			&examplesJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan intent pattern: %w", err)
		}
		if err := json.Unmarshal([]byte(examplesJSON), &p.Examples); err != nil {
			p.Examples = nil
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats summarizes the knowledge base.
type Stats struct {
	LearnedCommands int            `json:"learned_commands"`
	UniquePatterns  int            `json:"unique_patterns"`
	ByIntent        map[string]int `json:"by_intent"`
}

// Stats returns counts over the log and the pattern view.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByIntent: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learned_commands`).Scan(&stats.LearnedCommands); err != nil {
		return stats, fmt.Errorf("count learned commands: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM intent_patterns`).Scan(&stats.UniquePatterns); err != nil {
		return stats, fmt.Errorf("count intent patterns: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT intent, COUNT(*) FROM learned_commands GROUP BY intent`)
	if err != nil {
		return stats, fmt.Errorf("count by intent: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var intent string
		var n int
		if err := rows.Scan(&intent, &n); err != nil {
			return stats, fmt.Errorf("scan intent count: %w", err)
		}
		stats.ByIntent[intent] = n
	}
	return stats, rows.Err()
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func patternKey(normalized, intent string) string {
	return normalized + "|" + intent
}

func scanCommand(rows *sql.Rows) (types.LearnedCommand, error) {
	var cmd types.LearnedCommand
	var paramsJSON, source string
	if err := rows.Scan(&cmd.ID, &cmd.UtteranceText, &cmd.NormalizedText,
		&cmd.Intent, &cmd.Action, &paramsJSON, &cmd.Confidence,
		&source, &cmd.CreatedAt); err != nil {
		return cmd, fmt.Errorf("scan learned command: %w", err)
	}
	cmd.Source = types.Source(source)
	if err := json.Unmarshal([]byte(paramsJSON), &cmd.Parameters); err != nil {
		cmd.Parameters = nil
	}
	return cmd, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
