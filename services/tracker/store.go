package tracker

import (
	"context"

	"github.com/pkg/errors"
	cs "github.com/webtor-io/common-services"

	"github.com/markoprodanovic/one-piece-tracker/models"
)

// PGStore adapts the Postgres episode table to the Store interface.
type PGStore struct {
	pg *cs.PG
}

func NewPGStore(pg *cs.PG) *PGStore {
	return &PGStore{
		pg: pg,
	}
}

func (s *PGStore) ExistingIDs(ctx context.Context) (map[int]struct{}, error) {
	db := s.pg.Get()
	if db == nil {
		return nil, errors.New("database connection not available")
	}
	return models.GetExistingEpisodeIDs(ctx, db)
}

func (s *PGStore) Upsert(ctx context.Context, episodes []*models.Episode) (int, error) {
	db := s.pg.Get()
	if db == nil {
		return 0, errors.New("database connection not available")
	}
	return models.UpsertEpisodes(ctx, db, episodes)
}
