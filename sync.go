package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"

	"github.com/markoprodanovic/one-piece-tracker/services/onepiece"
	"github.com/markoprodanovic/one-piece-tracker/services/tracker"
)

func makeSyncCMD() cli.Command {
	syncCMD := cli.Command{
		Name:    "sync",
		Aliases: []string{"s"},
		Usage:   "Fetches episodes from the one piece api and stores the new ones",
		Action:  sync,
	}
	configureSync(&syncCMD)
	return syncCMD
}

func configureSync(c *cli.Command) {
	c.Flags = cs.RegisterPGFlags(c.Flags)
	c.Flags = onepiece.RegisterFlags(c.Flags)
	c.Flags = tracker.RegisterFlags(c.Flags)
}

func sync(c *cli.Context) error {
	// Setting DB
	pg := cs.NewPG(c)
	defer pg.Close()

	// Setting Migrations
	m := cs.NewPGMigration(pg)
	err := m.Run()
	if err != nil {
		return err
	}
	db := pg.Get()
	if db == nil {
		return errors.New("db is nil")
	}

	// Setting HTTP Client
	cl := http.DefaultClient

	// Setting One Piece Api
	api := onepiece.New(c, cl)

	// Setting Tracker
	tr := tracker.New(c, api, tracker.NewPGStore(pg))

	ctx := context.Background()
	stats, err := tr.Sync(ctx)
	if err != nil {
		if stats.Written > 0 {
			log.Errorf("sync failed after writing %d of %d new episodes", stats.Written, stats.New)
		}
		return err
	}

	printSummary(stats)
	return nil
}

func printSummary(stats *tracker.Stats) {
	fmt.Println("sync summary")
	fmt.Printf("  episodes fetched from api: %d\n", stats.Fetched)
	fmt.Printf("  valid episodes parsed:     %d\n", stats.Parsed)
	fmt.Printf("  episodes already stored:   %d\n", stats.Existing)
	fmt.Printf("  new episodes found:        %d\n", stats.New)
	fmt.Printf("  episodes written:          %d\n", stats.Written)
	fmt.Printf("  duration:                  %v\n", stats.Duration.Round(time.Millisecond))
}
