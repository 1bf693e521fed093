package models

import (
	"context"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
)

// Episodes are written once at first sync and never updated afterwards,
// so every column except the timestamps comes straight from the api.
type Episode struct {
	tableName struct{} `pg:"episodes"`

	ID          int        `pg:"id,pk" json:"id"`
	Title       string     `pg:"title,notnull" json:"title"`
	ReleaseDate *time.Time `pg:"release_date" json:"release_date"`
	ArcTitle    *string    `pg:"arc_title" json:"arc_title"`
	SagaTitle   *string    `pg:"saga_title" json:"saga_title"`
	CreatedAt   time.Time  `pg:"created_at,default:now()" json:"created_at"`
	UpdatedAt   time.Time  `pg:"updated_at,default:now()" json:"updated_at"`
}

const upsertBatchSize = 500

// RecentEpisodesLimit is the length of the recent-activity tail shown
// by the status command and the monitoring api.
const RecentEpisodesLimit = 3

func GetExistingEpisodeIDs(ctx context.Context, db *pg.DB) (map[int]struct{}, error) {
	var ids []int

	err := db.Model((*Episode)(nil)).
		Context(ctx).
		Column("id").
		Select(&ids)
	if err != nil {
		return nil, err
	}

	existing := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// UpsertEpisodes inserts episodes in batches with ON CONFLICT DO NOTHING,
// so replaying the same set after a partial failure is safe. On error it
// returns the number of rows committed by the batches that completed.
func UpsertEpisodes(ctx context.Context, db *pg.DB, episodes []*Episode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}

	written := 0
	for _, batch := range chunkEpisodes(episodes, upsertBatchSize) {
		res, err := db.Model(&batch).
			Context(ctx).
			OnConflict("(id) DO NOTHING").
			Insert()
		if err != nil {
			return written, errors.Wrapf(err, "failed after writing %d of %d episodes", written, len(episodes))
		}
		written += res.RowsAffected()
	}
	return written, nil
}

func chunkEpisodes(episodes []*Episode, size int) [][]*Episode {
	var chunks [][]*Episode
	for len(episodes) > size {
		chunks = append(chunks, episodes[:size])
		episodes = episodes[size:]
	}
	return append(chunks, episodes)
}

func GetEpisodeByID(ctx context.Context, db *pg.DB, id int) (*Episode, error) {
	var episode Episode

	err := db.Model(&episode).
		Context(ctx).
		Where("id = ?", id).
		Limit(1).
		Select()

	if errors.Is(err, pg.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &episode, nil
}

func GetRecentEpisodes(ctx context.Context, db *pg.DB, limit int) ([]Episode, error) {
	var episodes []Episode

	err := db.Model(&episodes).
		Context(ctx).
		Order("id DESC").
		Limit(limit).
		Select()
	if err != nil {
		return nil, err
	}

	return episodes, nil
}

type EpisodeStats struct {
	TotalEpisodes       int        `pg:"total_episodes" json:"total_episodes"`
	EarliestEpisode     *int       `pg:"earliest_episode" json:"earliest_episode"`
	LatestEpisode       *int       `pg:"latest_episode" json:"latest_episode"`
	EarliestReleaseDate *time.Time `pg:"earliest_release_date" json:"earliest_release_date"`
	LatestReleaseDate   *time.Time `pg:"latest_release_date" json:"latest_release_date"`
	UniqueSagas         int        `pg:"unique_sagas" json:"unique_sagas"`
	UniqueArcs          int        `pg:"unique_arcs" json:"unique_arcs"`
}

func GetEpisodeStats(ctx context.Context, db *pg.DB) (*EpisodeStats, error) {
	stats := &EpisodeStats{}

	err := db.Model((*Episode)(nil)).
		Context(ctx).
		ColumnExpr("count(*) AS total_episodes").
		ColumnExpr("min(id) AS earliest_episode").
		ColumnExpr("max(id) AS latest_episode").
		ColumnExpr("min(release_date) AS earliest_release_date").
		ColumnExpr("max(release_date) AS latest_release_date").
		ColumnExpr("count(DISTINCT saga_title) AS unique_sagas").
		ColumnExpr("count(DISTINCT arc_title) AS unique_arcs").
		Select(stats)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
