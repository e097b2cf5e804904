// Command ledgerctl runs maintenance tasks against the stock database.
//
//	ledgerctl verify
//	ledgerctl rebuild
//	ledgerctl prune -older-than 720h
//	ledgerctl release-stale -older-than 1h
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"directstock/internal/config"
	"directstock/internal/idempotency"
	"directstock/internal/ledger"
	"directstock/internal/store"
	"directstock/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	olderThan := fs.Duration("older-than", 0, "age cutoff for reservation maintenance")
	_ = fs.Parse(os.Args[2:])

	cfg := config.Load()
	appLogger := logger.New(cfg.Environment)
	defer appLogger.Sync()

	db, err := store.Open(store.Config{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, command, *olderThan, db, appLogger); err != nil {
		appLogger.Error("Command failed", zap.String("command", command), zap.Error(err))
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, olderThan time.Duration, db *store.DB, log *zap.Logger) error {
	projection := ledger.NewProjection(ledger.New(db, log), ledger.NewJournal(db, log), log)
	reservations := idempotency.NewLog(db, log)

	switch command {
	case "verify":
		drifts, err := projection.Verify(ctx)
		if err != nil {
			return err
		}
		report(drifts)
		if len(drifts) > 0 {
			return fmt.Errorf("%d stock lines drift from the journal", len(drifts))
		}
	case "rebuild":
		drifts, err := projection.Rebuild(ctx)
		if err != nil {
			return err
		}
		report(drifts)
	case "prune":
		if olderThan <= 0 {
			olderThan = 30 * 24 * time.Hour
		}
		n, err := reservations.Prune(ctx, time.Now().UTC().Add(-olderThan))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d reservations\n", n)
	case "release-stale":
		if olderThan <= 0 {
			olderThan = time.Hour
		}
		n, err := reservations.ReleaseStale(ctx, time.Now().UTC().Add(-olderThan))
		if err != nil {
			return err
		}
		fmt.Printf("released %d stale reservations\n", n)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func report(drifts []ledger.Drift) {
	if len(drifts) == 0 {
		fmt.Println("stock lines match the journal")
		return
	}
	for _, d := range drifts {
		fmt.Printf("product=%s bin=%s projected=%s journal=%s\n", d.ProductID, d.BinID, d.Projected, d.Journal)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledgerctl verify|rebuild|prune|release-stale [-older-than duration]")
}
