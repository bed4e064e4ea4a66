// Command timeline dumps the merged timeline of one transaction
// straight from the store. It opens the database read-only so it can
// run next to the live daemon.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"deal-lab/projection"
	"deal-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"/tmp/deal-lab/badger"`
	Colours        bool   `envconfig:"TIMELINE_COLOURS" default:"true"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	dbPath := flag.String("db", config.BadgerFilepath, "Path to badger DB")
	rawID := flag.String("txn", "", "Transaction ID to dump")
	flag.Parse()

	transactionID, err := uuid.Parse(*rawID)
	if err != nil {
		log.Fatalf("A valid -txn is required: %v", err)
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	transactions := repositories.NewTransactionRepository(db, logger)
	offers := repositories.NewOfferRepository(db, logger)
	milestones := repositories.NewMilestoneRepository(db, logger)

	txn, err := transactions.Get(transactionID)
	if err != nil {
		log.Fatalf("Transaction lookup failed: %v", err)
	}
	history, err := transactions.History(transactionID)
	if err != nil {
		log.Fatalf("History lookup failed: %v", err)
	}
	milestoneList, err := milestones.ListByTransaction(transactionID)
	if err != nil {
		log.Fatalf("Milestone lookup failed: %v", err)
	}
	offerList, err := offers.ListByTransaction(transactionID)
	if err != nil {
		log.Fatalf("Offer lookup failed: %v", err)
	}

	header := fmt.Sprintf("Transaction %s [%s] %s", txn.ID, txn.Type, txn.Status)
	if config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "Kind", "Actor", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, entry := range projection.Timeline(history, milestoneList, offerList, time.Now()) {
		kind := string(entry.Kind)
		if config.Colours {
			kind = colourKind(entry.Kind)
		}
		table.Append([]string{
			entry.At.Format("2006-01-02 15:04:05"),
			kind,
			entry.Actor,
			entry.Label,
		})
	}
	table.Render()
}

func colourKind(kind projection.EntryKind) string {
	switch kind {
	case projection.EntryStatus:
		return color.FgCyan.Render(string(kind))
	case projection.EntryMilestone:
		return color.FgGreen.Render(string(kind))
	case projection.EntryOffer:
		return color.FgYellow.Render(string(kind))
	default:
		return string(kind)
	}
}

func openDB(path string) (*badger.DB, error) {
	// BypassLockGuard allows opening while the daemon holds the lock.
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
