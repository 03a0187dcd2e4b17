package main

import (
	"context"
	"log"

	"github.com/cschwartz85032/loanserve-sub010/internal/bootstrap"
	"github.com/cschwartz85032/loanserve-sub010/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	svc, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap worker: %v", err)
	}

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}
