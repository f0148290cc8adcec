package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pauljones0/production-scout/internal/models"
)

// State reads and writes the catalog and source statuses over a BlobStore.
// Every failure comes back as a *models.PersistenceError.
type State struct {
	blobs BlobStore
}

func NewState(blobs BlobStore) *State {
	return &State{blobs: blobs}
}

// LoadCatalog returns the saved postings, or nil if nothing was saved yet.
func (s *State) LoadCatalog(ctx context.Context) ([]models.Posting, error) {
	var postings []models.Posting
	if err := s.load(ctx, KeyProjects, &postings); err != nil {
		return nil, err
	}
	return postings, nil
}

// SaveCatalog replaces the saved catalog wholesale.
func (s *State) SaveCatalog(ctx context.Context, postings []models.Posting) error {
	if postings == nil {
		postings = []models.Posting{}
	}
	return s.save(ctx, KeyProjects, postings)
}

// LoadStatuses returns the saved statuses, or nil if nothing was saved yet.
func (s *State) LoadStatuses(ctx context.Context) (map[string]models.SourceStatus, error) {
	var statuses map[string]models.SourceStatus
	if err := s.load(ctx, KeySources, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// SaveStatuses replaces the saved statuses wholesale.
func (s *State) SaveStatuses(ctx context.Context, statuses map[string]models.SourceStatus) error {
	return s.save(ctx, KeySources, statuses)
}

func (s *State) load(ctx context.Context, key string, v any) error {
	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return &models.PersistenceError{Op: "load", Key: key, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &models.PersistenceError{Op: "decode", Key: key, Err: err}
	}
	return nil
}

func (s *State) save(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &models.PersistenceError{Op: "encode", Key: key, Err: err}
	}
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return &models.PersistenceError{Op: "save", Key: key, Err: err}
	}
	return nil
}
