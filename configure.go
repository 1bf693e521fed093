package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	services "github.com/webtor-io/common-services"
)

const (
	logLevelFlag = "log-level"
)

func configure(app *cli.App) {
	app.Flags = append(app.Flags,
		cli.StringFlag{
			Name:   logLevelFlag,
			Usage:  "logging level (debug, info, warn, error)",
			Value:  "info",
			EnvVar: "LOG_LEVEL",
		},
	)
	app.Before = func(c *cli.Context) error {
		level, err := log.ParseLevel(c.String(logLevelFlag))
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	}
	syncCMD := makeSyncCMD()
	statusCMD := makeStatusCMD()
	serveCMD := makeServeCMD()
	migrationCMD := services.MakePGMigrationCMD()
	app.Commands = []cli.Command{syncCMD, statusCMD, serveCMD, migrationCMD}
}
