package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/clipsync/internal/edge/app"
	"github.com/dmitrijs2005/clipsync/internal/edge/config"
)

func main() {

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
