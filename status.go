package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"

	"github.com/markoprodanovic/one-piece-tracker/models"
	"github.com/markoprodanovic/one-piece-tracker/services/onepiece"
)

const (
	statusIDFlag = "id"
)

func makeStatusCMD() cli.Command {
	statusCMD := cli.Command{
		Name:    "status",
		Aliases: []string{"st"},
		Usage:   "Shows api health and database state",
		Action:  status,
	}
	configureStatus(&statusCMD)
	return statusCMD
}

func configureStatus(c *cli.Command) {
	c.Flags = append(c.Flags,
		cli.IntFlag{
			Name:  statusIDFlag,
			Usage: "look up a single episode instead of printing the full report",
		},
	)
	c.Flags = cs.RegisterPGFlags(c.Flags)
	c.Flags = onepiece.RegisterFlags(c.Flags)
}

func status(c *cli.Context) error {
	// Setting DB
	pg := cs.NewPG(c)
	defer pg.Close()

	db := pg.Get()
	if db == nil {
		return errors.New("db is nil")
	}

	// Setting HTTP Client
	cl := http.DefaultClient

	// Setting One Piece Api
	api := onepiece.New(c, cl)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	if id := c.Int(statusIDFlag); id != 0 {
		return statusEpisode(ctx, db, api, id)
	}

	if err := api.Health(ctx); err != nil {
		return errors.Wrap(err, "one piece api is not reachable")
	}
	fmt.Println("api:      ok")

	if err := db.Ping(ctx); err != nil {
		return errors.Wrap(err, "database is not reachable")
	}
	fmt.Println("database: ok")

	stats, err := models.GetEpisodeStats(ctx, db)
	if err != nil {
		return errors.Wrap(err, "failed to get episode stats")
	}

	fmt.Printf("total episodes: %v\n", humanize.Comma(int64(stats.TotalEpisodes)))
	if stats.EarliestEpisode != nil && stats.LatestEpisode != nil {
		fmt.Printf("episode range:  %d to %d\n", *stats.EarliestEpisode, *stats.LatestEpisode)
	}
	if stats.LatestReleaseDate != nil {
		fmt.Printf("latest release: %s (%s)\n",
			stats.LatestReleaseDate.Format("2006-01-02"),
			humanize.Time(*stats.LatestReleaseDate))
	}
	fmt.Printf("unique sagas:   %d\n", stats.UniqueSagas)
	fmt.Printf("unique arcs:    %d\n", stats.UniqueArcs)

	recent, err := models.GetRecentEpisodes(ctx, db, models.RecentEpisodesLimit)
	if err != nil {
		return errors.Wrap(err, "failed to get recent episodes")
	}
	for _, ep := range recent {
		fmt.Printf("episode %d: %s\n", ep.ID, ep.Title)
	}

	return nil
}

// statusEpisode reports a single episode: the stored row when it is
// already synced, otherwise whether upstream has published it yet.
func statusEpisode(ctx context.Context, db *pg.DB, api *onepiece.Api, id int) error {
	episode, err := models.GetEpisodeByID(ctx, db, id)
	if err != nil {
		return errors.Wrap(err, "failed to get episode")
	}
	if episode != nil {
		fmt.Printf("episode %d: %s\n", episode.ID, episode.Title)
		if episode.ReleaseDate != nil {
			fmt.Printf("  released: %s\n", episode.ReleaseDate.Format("2006-01-02"))
		}
		if episode.ArcTitle != nil {
			fmt.Printf("  arc:      %s\n", *episode.ArcTitle)
		}
		if episode.SagaTitle != nil {
			fmt.Printf("  saga:     %s\n", *episode.SagaTitle)
		}
		fmt.Printf("  synced:   %s\n", episode.CreatedAt.Format(time.RFC3339))
		return nil
	}

	upstream, err := api.FetchEpisodeByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "failed to fetch episode from api")
	}
	if upstream == nil {
		fmt.Printf("episode %d is unknown to both the database and the api\n", id)
		return nil
	}
	fmt.Printf("episode %d (%s) is published upstream but not synced yet\n", id, upstream.Title)
	return nil
}
