// Package store persists donation commitments. It is the sole shared
// mutable resource in the system: all cross-request coordination happens
// through its uniqueness constraints, and reads operate on already-committed
// rows without additional locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrNullifierUsed is the conflict error for a spent nullifier
	ErrNullifierUsed = errors.New("nullifier already used")
	// ErrCommitmentExists is the conflict error for a duplicate commitment
	ErrCommitmentExists = errors.New("commitment already exists")
	// ErrNotFound is returned when a commitment hash is unknown
	ErrNotFound = errors.New("commitment not found")
	// ErrAlreadyRevealed guards the one-shot reveal
	ErrAlreadyRevealed = errors.New("commitment already revealed")
	// ErrRevealInconsistent marks a reveal that violates data integrity
	ErrRevealInconsistent = errors.New("inconsistent reveal state")
)

// Store is a SQLite-backed commitment store. Uses an in-memory database when
// dataDir is empty, useful for testing.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a commitment store with optional persistence under dataDir.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var db *gorm.DB
	var err error
	if dataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		db, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
				TranslateError:         true,
			},
		)
	} else {
		if _, statErr := os.Stat(dataDir); statErr != nil {
			if !errors.Is(statErr, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", statErr)
			}
			if mkErr := os.MkdirAll(dataDir, fs.ModePerm); mkErr != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", mkErr)
			}
		}
		dbPath := filepath.Join(dataDir, "commitments.sqlite")
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		db, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
				TranslateError:         true,
			},
		)
	}
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Commitment{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close cleans up the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add inserts a commitment, atomically reserving its nullifier. A duplicate
// nullifier or commitment hash fails the insert with a distinct conflict
// error; concurrent double-submission results in exactly one stored row.
func (s *Store) Add(ctx context.Context, c *Commitment) error {
	if c.IsRevealed != (c.RevealedAmount != nil) {
		return ErrRevealInconsistent
	}
	result := s.db.WithContext(ctx).Create(c)
	if result.Error == nil {
		s.logger.Debug(
			"commitment stored",
			"commitment", c.CommitmentHash,
			"event", c.EventID,
			"backend", c.Backend,
		)
		return nil
	}
	if !isDuplicateKey(result.Error) {
		return result.Error
	}
	// Disambiguate which constraint fired. The nullifier check comes first:
	// a replayed secret is the interesting conflict even when the full
	// commitment is also identical.
	var count int64
	if err := s.db.WithContext(ctx).Model(&Commitment{}).
		Where("nullifier_hash = ?", c.NullifierHash).
		Count(&count).Error; err == nil && count > 0 {
		return fmt.Errorf("%w: %s", ErrNullifierUsed, c.NullifierHash)
	}
	return fmt.Errorf("%w: %s", ErrCommitmentExists, c.CommitmentHash)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite reports constraint violations by message in some paths
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// MarkVerified records a successful proof-backend verification for the
// commitment. The transition is monotonic false→true; re-marking is a no-op.
func (s *Store) MarkVerified(ctx context.Context, commitmentHash string) error {
	result := s.db.WithContext(ctx).Model(&Commitment{}).
		Where("commitment_hash = ?", commitmentHash).
		Update("verified", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, commitmentHash)
	}
	return nil
}

// Reveal records a donor's voluntary amount disclosure. Write-once: a second
// reveal is rejected. proven marks amounts that were re-derived against the
// commitment hash from the original secret.
func (s *Store) Reveal(ctx context.Context, commitmentHash string, amount uint64, proven bool) error {
	if amount == 0 {
		return fmt.Errorf("%w: revealed amount must be positive", ErrRevealInconsistent)
	}
	updates := map[string]any{
		"is_revealed":     true,
		"revealed_amount": amount,
	}
	if proven {
		updates["proven_amount"] = amount
	}
	result := s.db.WithContext(ctx).Model(&Commitment{}).
		Where("commitment_hash = ? AND is_revealed = ?", commitmentHash, false).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either unknown or already revealed; look up to tell them apart
		var count int64
		if err := s.db.WithContext(ctx).Model(&Commitment{}).
			Where("commitment_hash = ?", commitmentHash).
			Count(&count).Error; err == nil && count > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyRevealed, commitmentHash)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, commitmentHash)
	}
	return nil
}

// AttachEscrow stores a timelock capsule of the donor secret alongside the
// commitment.
func (s *Store) AttachEscrow(ctx context.Context, commitmentHash string, capsule []byte, round uint64) error {
	if len(capsule) == 0 {
		return errors.New("empty escrow capsule")
	}
	result := s.db.WithContext(ctx).Model(&Commitment{}).
		Where("commitment_hash = ?", commitmentHash).
		Updates(map[string]any{
			"escrow_capsule": capsule,
			"escrow_round":   round,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, commitmentHash)
	}
	return nil
}

// ByCommitmentHash fetches a single commitment.
func (s *Store) ByCommitmentHash(ctx context.Context, commitmentHash string) (*Commitment, error) {
	var c Commitment
	err := s.db.WithContext(ctx).
		Where("commitment_hash = ?", commitmentHash).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, commitmentHash)
		}
		return nil, err
	}
	return &c, nil
}

// ByEvent returns all commitments for an event in insertion order. Reads
// tolerate rows arriving between snapshot and response; read-committed is
// sufficient for the derived milestone and ranking views.
func (s *Store) ByEvent(ctx context.Context, eventID string) ([]Commitment, error) {
	var rows []Commitment
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
