package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "one-piece-tracker"
	app.Usage = "Keeps a local database of One Piece episodes in sync with the public api"
	app.Version = "0.1.0"
	configure(app)
	err := app.Run(os.Args)
	if err != nil {
		log.WithError(err).Fatal("application failed")
	}
}
