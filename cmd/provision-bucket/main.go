package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/config"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/provision"
)

func main() {
	configPath := flag.String("config", os.Getenv("SONGPLAY_CONFIG"), "path to YAML or JSON config file")
	bucket := flag.String("bucket", "", "bucket to create (overrides provision.bucket)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := config.MustLoad(*configPath)
	logging.Setup(cfg.Logging)

	if *bucket != "" {
		cfg.Provision.Bucket = *bucket
	}
	if cfg.Provision.Bucket == "" {
		log.Fatal("[main] provision.bucket is required")
	}
	location := cfg.Provision.LocationConstraint
	if location == "" {
		location = cfg.Provision.Region
	}

	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := provision.NewClient(ctx, provision.ClientConfig{
		Region:          cfg.Provision.Region,
		Endpoint:        cfg.Provision.Endpoint,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
	})
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	p := provision.New(client)
	if err := p.EnsureBucket(ctx, cfg.Provision.Bucket, location); err != nil {
		log.Fatalf("[main] %v", err)
	}
	log.Printf("[main] bucket %s ready in %s", cfg.Provision.Bucket, cfg.Provision.Region)
}
