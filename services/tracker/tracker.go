package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/markoprodanovic/one-piece-tracker/models"
	"github.com/markoprodanovic/one-piece-tracker/services/onepiece"
)

const (
	titlePlaceholderFlag = "episode-title-placeholder"
)

func RegisterFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   titlePlaceholderFlag,
			Usage:  "title stored for episodes the api returns without one",
			EnvVar: "EPISODE_TITLE_PLACEHOLDER",
			Value:  "Untitled Episode",
		},
	)
}

type Source interface {
	FetchAllEpisodes(ctx context.Context) ([]onepiece.Episode, error)
}

type Store interface {
	ExistingIDs(ctx context.Context) (map[int]struct{}, error)
	Upsert(ctx context.Context, episodes []*models.Episode) (int, error)
}

type Stats struct {
	StartedAt time.Time
	Duration  time.Duration
	Fetched   int
	Parsed    int
	Existing  int
	New       int
	Written   int
}

// Tracker drives one sync pass: fetch the full upstream list, diff it
// against the ids already stored and write only the missing episodes.
// Stored rows are never touched again.
type Tracker struct {
	src              Source
	store            Store
	titlePlaceholder string
}

func New(c *cli.Context, src Source, store Store) *Tracker {
	return &Tracker{
		src:              src,
		store:            store,
		titlePlaceholder: c.String(titlePlaceholderFlag),
	}
}

// Sync runs the fetch, diff and write stages in order and fails fast on
// the first stage error. The returned Stats are valid even on failure,
// so a partial write still reports how many rows were committed.
func (s *Tracker) Sync(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
	}()

	episodes, err := s.src.FetchAllEpisodes(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "failed to fetch episodes")
	}
	stats.Fetched = len(episodes)

	records := s.convert(episodes)
	stats.Parsed = len(records)

	existing, err := s.store.ExistingIDs(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "failed to get existing episode ids")
	}
	stats.Existing = len(existing)
	log.Infof("found %d existing episodes in database", len(existing))

	fresh := findNew(records, existing)
	stats.New = len(fresh)
	if len(fresh) == 0 {
		log.Info("no new episodes found, database is up to date")
		return stats, nil
	}
	log.Infof("found %d new episodes", len(fresh))

	written, err := s.store.Upsert(ctx, fresh)
	stats.Written = written
	if err != nil {
		return stats, errors.Wrap(err, "failed to write new episodes")
	}
	log.Infof("wrote %d new episodes", written)

	return stats, nil
}

func (s *Tracker) convert(episodes []onepiece.Episode) []*models.Episode {
	records := make([]*models.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.ID <= 0 {
			log.Warnf("skipping episode with invalid id %d", ep.ID)
			continue
		}
		records = append(records, s.toRecord(ep))
	}
	return records
}

// toRecord normalizes an api episode for storage. Optional fields stay
// nil when the api omits them, only a missing title gets a placeholder.
func (s *Tracker) toRecord(ep onepiece.Episode) *models.Episode {
	title := strings.TrimSpace(ep.Title)
	if title == "" {
		log.Infof("episode %d has no title, using placeholder", ep.ID)
		title = s.titlePlaceholder
	}

	record := &models.Episode{
		ID:    ep.ID,
		Title: title,
	}
	if ep.ReleaseDate != "" {
		if t, err := time.Parse("2006-01-02", ep.ReleaseDate); err == nil {
			record.ReleaseDate = &t
		} else {
			log.Warnf("episode %d has malformed release date %q", ep.ID, ep.ReleaseDate)
		}
	}
	if t := ep.ArcTitle(); t != "" {
		record.ArcTitle = &t
	}
	if t := ep.SagaTitle(); t != "" {
		record.SagaTitle = &t
	}
	return record
}

// findNew keeps the fetched records whose id is not stored yet,
// preserving upstream order.
func findNew(records []*models.Episode, existing map[int]struct{}) []*models.Episode {
	fresh := make([]*models.Episode, 0, len(records))
	for _, record := range records {
		if _, ok := existing[record.ID]; ok {
			continue
		}
		fresh = append(fresh, record)
	}
	return fresh
}
