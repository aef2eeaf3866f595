// Package storage keeps the user's profile, analysis history and usage
// statistics in a key/value database.Store.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/franckalain/labelverdict/internal/database"
	"github.com/franckalain/labelverdict/internal/models"
)

// Keys of the independently stored records
const (
	KeyAge         = "product-analyzer-age"
	KeyGoals       = "product-analyzer-goals"
	KeyPreferences = "product-analyzer-preferences"
	KeyHistory     = "product-analyzer-history"
	KeyStats       = "product-analyzer-stats"
)

// HistoryLimit is how many analyses are kept; older ones are evicted first
const HistoryLimit = 12

type historyDocument struct {
	Version int                   `json:"version"`
	Entries []models.HistoryEntry `json:"entries"`
}

// Local is the typed persistence layer. Reads never fail: absent, unreadable
// and corrupt records all come back as their zero value, the latter two with
// a logged warning. Mutations are serialized so a read-modify-write never
// interleaves with another write.
type Local struct {
	db  database.Store
	log *slog.Logger
	mu  sync.Mutex
}

func NewLocal(db database.Store, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{db: db, log: log}
}

// load reads key into v. It reports whether v was filled.
func (l *Local) load(ctx context.Context, key string, v any) bool {
	data, ok, err := l.db.Load(ctx, key)
	if err != nil {
		l.log.Warn("Failed to read from storage", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		l.log.Warn("Ignoring corrupt stored value", "key", key, "error", fmt.Errorf("%w: %v", models.ErrStorageCorrupt, err))
		return false
	}
	return true
}

func (l *Local) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := l.db.Save(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// Profile returns the stored profile. ok is false when no valid age is stored.
func (l *Local) Profile(ctx context.Context) (models.Profile, bool) {
	var p models.Profile

	var raw json.RawMessage
	if l.load(ctx, KeyAge, &raw) {
		// The age has been stored both as a JSON number and as a quoted string.
		var s string
		if json.Unmarshal(raw, &s) == nil {
			raw = json.RawMessage(s)
		}
		if age, err := strconv.Atoi(string(bytes.TrimSpace(raw))); err == nil {
			p.Age = age
		} else {
			l.log.Warn("Ignoring corrupt stored value", "key", KeyAge, "error", models.ErrStorageCorrupt)
		}
	}
	if !l.load(ctx, KeyGoals, &p.Goals) {
		p.Goals = nil
	}
	if !l.load(ctx, KeyPreferences, &p.DietaryPreferences) {
		p.DietaryPreferences = nil
	}

	if !p.Valid() {
		p.Age = 0
		return p, false
	}
	return p, true
}

// SaveProfile overwrites the profile records
func (l *Local) SaveProfile(ctx context.Context, p models.Profile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.save(ctx, KeyAge, p.Age); err != nil {
		return err
	}
	if err := l.save(ctx, KeyGoals, nonNil(p.Goals)); err != nil {
		return err
	}
	return l.save(ctx, KeyPreferences, nonNil(p.DietaryPreferences))
}

// SaveAge overwrites only the stored age
func (l *Local) SaveAge(ctx context.Context, age int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(ctx, KeyAge, age)
}

// History returns past analyses, newest first
func (l *Local) History(ctx context.Context) []models.HistoryEntry {
	data, ok, err := l.db.Load(ctx, KeyHistory)
	if err != nil {
		l.log.Warn("Failed to read from storage", "key", KeyHistory, "error", err)
		return []models.HistoryEntry{}
	}
	if !ok {
		return []models.HistoryEntry{}
	}

	// Early versions stored a bare array of entries.
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []models.HistoryEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			l.log.Warn("Ignoring corrupt stored value", "key", KeyHistory, "error", fmt.Errorf("%w: %v", models.ErrStorageCorrupt, err))
			return []models.HistoryEntry{}
		}
		return nonNil(entries)
	}

	var doc historyDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		l.log.Warn("Ignoring corrupt stored value", "key", KeyHistory, "error", fmt.Errorf("%w: %v", models.ErrStorageCorrupt, err))
		return []models.HistoryEntry{}
	}
	if doc.Version > models.SchemaVersion {
		l.log.Warn("History written by a newer schema", "version", doc.Version, "supported", models.SchemaVersion)
	}
	return nonNil(doc.Entries)
}

func (l *Local) saveHistory(ctx context.Context, entries []models.HistoryEntry) error {
	return l.save(ctx, KeyHistory, historyDocument{Version: models.SchemaVersion, Entries: nonNil(entries)})
}

// HistoryEntry returns the entry with the given id
func (l *Local) HistoryEntry(ctx context.Context, id string) (models.HistoryEntry, bool) {
	for _, e := range l.History(ctx) {
		if e.ID == id {
			return e, true
		}
	}
	return models.HistoryEntry{}, false
}

// AppendHistory puts entry first and evicts the oldest entries beyond HistoryLimit
func (l *Local) AppendHistory(ctx context.Context, entry models.HistoryEntry) ([]models.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append([]models.HistoryEntry{entry}, l.History(ctx)...)
	if len(entries) > HistoryLimit {
		entries = entries[:HistoryLimit]
	}
	if err := l.saveHistory(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteHistory removes one entry. It reports whether the entry existed.
func (l *Local) DeleteHistory(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.History(ctx)
	kept := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return false, nil
	}
	return true, l.saveHistory(ctx, kept)
}

// ClearHistory removes every entry
func (l *Local) ClearHistory(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Remove(ctx, KeyHistory)
}

// Stats returns the usage counters
func (l *Local) Stats(ctx context.Context) models.UsageStats {
	var stats models.UsageStats
	if !l.load(ctx, KeyStats, &stats) {
		return models.UsageStats{}
	}
	return stats
}

// IncrementStats bumps each named counter by one in a single write
func (l *Local) IncrementStats(ctx context.Context, fields ...models.StatField) (models.UsageStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.Stats(ctx)
	for _, f := range fields {
		stats.Increment(f)
	}
	if err := l.save(ctx, KeyStats, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// ResetStats zeroes every counter
func (l *Local) ResetStats(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Remove(ctx, KeyStats)
}

// Achievements returns the achievement IDs unlocked by the stored stats
func (l *Local) Achievements(ctx context.Context) []string {
	return models.UnlockedAchievements(l.Stats(ctx))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
