package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulseboard/platform/pkg/appstore/store"
	appsync "github.com/pulseboard/platform/pkg/appstore/sync"
	"github.com/pulseboard/platform/pkg/common/config"
	"github.com/pulseboard/platform/pkg/common/database"
	"github.com/pulseboard/platform/pkg/common/logger"
	"github.com/pulseboard/platform/pkg/gateway/httpclient"
)

// One-shot runner for cron or manual use. Runs a single sync action
// against the configured database and prints the summary as JSON.
func main() {
	action := flag.String("action", appsync.ActionAll, "sync action: sync-all, sync-sales, sync-reviews or sync-metrics")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall run timeout")
	flag.Parse()

	logger.Init("appstore-sync")
	cfg := config.Load()

	if !appsync.ValidAction(*action) {
		fmt.Fprintf(os.Stderr, "unknown action %q\n", *action)
		os.Exit(2)
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := store.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate appstore tables")
	}

	coordinator := appsync.NewCoordinator(repo, appsync.Credentials{
		IssuerID:     cfg.ASCIssuerID,
		KeyID:        cfg.ASCKeyID,
		PrivateKey:   cfg.ASCPrivateKey,
		VendorNumber: cfg.ASCVendorNumber,
	}, cfg.ASCBaseURL, httpclient.New(cfg.ASCHTTPTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := coordinator.Run(ctx, *action)

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to encode summary")
	}
	fmt.Println(string(encoded))

	if !summary.Success {
		os.Exit(1)
	}
}
