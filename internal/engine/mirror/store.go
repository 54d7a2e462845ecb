package mirror

import (
	"context"
	"fmt"
	"os"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Store implements interfaces.MirrorStore using BadgerHold: one on-disk
// database, upserts keyed by natural id.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore opens (creating if needed) a BadgerHold database at path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror db at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("engine mirror opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) SaveJob(_ context.Context, snapshot *models.JobSnapshot) error {
	if err := s.db.Upsert(snapshot.Key, snapshot); err != nil {
		return fmt.Errorf("failed to save job snapshot '%s': %w", snapshot.Key, err)
	}
	return nil
}

func (s *Store) SaveQueue(_ context.Context, snapshot *models.QueueSnapshot) error {
	if err := s.db.Upsert(queueKey(snapshot.Name), snapshot); err != nil {
		return fmt.Errorf("failed to save queue snapshot '%s': %w", snapshot.Name, err)
	}
	return nil
}

func (s *Store) SaveServer(_ context.Context, snapshot *models.ServerSnapshot) error {
	if err := s.db.Upsert(serverKey(snapshot.ID), snapshot); err != nil {
		return fmt.Errorf("failed to save server snapshot '%s': %w", snapshot.ID, err)
	}
	return nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// queueKey/serverKey namespace queue and server snapshots away from job
// keys, which otherwise share the same BadgerHold bucket by record type
// already - these just keep log output and manual inspection unambiguous.
func queueKey(name string) string { return "queue:" + name }
func serverKey(id string) string  { return "server:" + id }
