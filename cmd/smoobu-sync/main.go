package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/casaolivo/bnb-server/internal/channelsync"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/smoobu"
	"github.com/casaolivo/bnb-server/internal/storage/firestoredb"
)

func main() {
	var (
		apartments = flag.Bool("apartments", false, "List Smoobu apartments and exit, to fill in room mappings")
		timeout    = flag.Duration("timeout", 5*time.Minute, "Give up after this long")
		showHelp   = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *showHelp {
		fmt.Println("Smoobu sync")
		fmt.Println("Usage: go run cmd/smoobu-sync/main.go [options]")
		fmt.Println("")
		fmt.Println("Runs one reconciliation of Smoobu reservations into Firestore.")
		fmt.Println("")
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	config.LoadConfig()
	cfg := config.AppConfig
	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := smoobu.NewClient(cfg.SmoobuBaseURL, cfg.SmoobuAPIKey, log)
	if !client.Enabled() {
		fmt.Fprintln(os.Stderr, "SMOOBU_API_KEY is not set")
		os.Exit(1)
	}

	if *apartments {
		list, err := client.ListApartments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list apartments: %v\n", err)
			os.Exit(1)
		}
		for _, a := range list {
			fmt.Printf("%d\t%s\n", a.ID, a.Name)
		}
		return
	}

	store, err := firestoredb.Open(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open Firestore: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	renderer, err := email.NewRenderer(cfg.Property.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load email templates: %v\n", err)
		os.Exit(1)
	}
	var mailer email.Mailer = email.NewLogMailer(renderer, log)
	if cfg.ResendAPIKey != "" {
		mailer = email.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom, renderer, log)
	}

	syncer := channelsync.NewSyncer(store, client, mailer, cfg, log)
	run, err := syncer.Run(ctx, channelsync.TriggerCLI)
	if err != nil && run == nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Fetched %d, created %d, updated %d, cancelled %d, conflicts %d\n",
		run.Fetched, run.Created, run.Updated, run.Cancelled, run.Conflicts)
	if run.Error != "" {
		fmt.Fprintf(os.Stderr, "Completed with errors: %s\n", run.Error)
		os.Exit(1)
	}
}
