// Package main provides a CLI tool for setting account moderation flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/cairnhall/takserver/internal/config"
	"github.com/cairnhall/takserver/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	username := flag.String("username", "", "target account username (required)")
	name := flag.String("flag", "", "flag to set: banned, gagged, or admin (required)")
	value := flag.String("value", "true", "flag value: true or false")
	flag.Parse()

	if *username == "" || *name == "" {
		flag.Usage()
		os.Exit(1)
	}

	on, err := strconv.ParseBool(*value)
	if err != nil {
		log.Fatalf("invalid value %q: must be true or false", *value)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := pool.Accounts()

	switch *name {
	case "banned":
		err = repo.SetBanned(ctx, *username, on)
	case "gagged":
		err = repo.SetGagged(ctx, *username, on)
	case "admin":
		err = repo.SetAdmin(ctx, *username, on)
	default:
		log.Fatalf("invalid flag %q: must be one of banned, gagged, admin", *name)
	}
	if err != nil {
		log.Fatalf("setting %s: %v", *name, err)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(os.Stdout, "set %s=%v for %s [%s]\n", *name, on, *username, elapsed)
}
