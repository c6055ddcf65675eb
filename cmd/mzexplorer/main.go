package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/mzexplorer/internal/client/cli"
	"github.com/dmitrijs2005/mzexplorer/internal/client/config"
)

func main() {

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}
	defer app.Close()

	app.Run(context.Background())

}
