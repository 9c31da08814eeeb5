package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/clipsync/internal/relay/app"
	"github.com/dmitrijs2005/clipsync/internal/relay/config"
)

func main() {

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
