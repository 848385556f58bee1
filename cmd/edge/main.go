package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/nutritrack/internal/edge/config"
	"github.com/dmitrijs2005/nutritrack/internal/server"
)

func main() {

	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}

}
