package main

import (
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	cs "github.com/webtor-io/common-services"

	st "github.com/markoprodanovic/one-piece-tracker/handlers/status"
	w "github.com/markoprodanovic/one-piece-tracker/services/web"
)

func makeServeCMD() cli.Command {
	serveCMD := cli.Command{
		Name:    "serve",
		Aliases: []string{"sv"},
		Usage:   "Serves read-only monitoring endpoints",
		Action:  serve,
	}
	configureServe(&serveCMD)
	return serveCMD
}

func configureServe(c *cli.Command) {
	c.Flags = cs.RegisterPGFlags(c.Flags)
	c.Flags = cs.RegisterProbeFlags(c.Flags)
	c.Flags = w.RegisterFlags(c.Flags)
	c.Flags = st.RegisterFlags(c.Flags)
}

func serve(c *cli.Context) error {
	// Setting DB
	pg := cs.NewPG(c)
	defer pg.Close()

	// Setting Migrations
	m := cs.NewPGMigration(pg)
	err := m.Run()
	if err != nil {
		return err
	}

	var servers []cs.Servable

	// Setting Probe
	probe := cs.NewProbe(c)
	if probe != nil {
		servers = append(servers, probe)
		defer probe.Close()
	}

	// Setting Gin
	r := gin.Default()

	// Setting StatusHandler
	st.RegisterHandler(c, r, pg)

	// Setting Web
	web := w.New(c, r)
	servers = append(servers, web)
	defer web.Close()

	// Setting Serve
	serve := cs.NewServe(servers...)

	err = serve.Serve()
	if err != nil {
		log.WithError(err).Error("got server error")
	}
	return err
}
