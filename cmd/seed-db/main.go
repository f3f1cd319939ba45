// Command seed-db loads events and ticket types into PostgreSQL from one or
// more JSON files (optionally gzip-compressed). Files may overlap; ticket
// types already seen are skipped, so re-running with the same inputs is safe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ticketbird/boxoffice/internal/storage/postgres"
)

const (
	dedupeCapacity = 1_000_000
	dedupeFPR      = 0.0001
)

type ticketTypeJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`
}

type eventJSON struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	StartsAt    *time.Time       `json:"starts_at"`
	TicketTypes []ticketTypeJSON `json:"ticket_types"`
}

func main() {
	var (
		databaseURL string
		dataDir     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&dataDir, "data-dir", "db/seed", "directory containing *.json or *.json.gz seed files")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := seedFiles(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no seed files in %s", dataDir)
	}

	slog.Info("parsing seed files", slog.Int("files", len(files)))

	// Parse all files concurrently; dedupe afterwards so overlapping files
	// don't double-seed.
	parsed := make([][]eventJSON, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			events, err := parseSeedFile(gctx, f)
			if err != nil {
				return errors.Wrapf(err, "parse %s", f)
			}
			parsed[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	events, ticketTotal := dedupe(parsed)
	slog.Info("seed data ready",
		slog.Int("events", len(events)),
		slog.Int("ticket_types", ticketTotal),
	)

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeSeed(ctx, pool, events)
}

func seedFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.json.gz"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrap(err, "glob seed files")
		}
		files = append(files, matches...)
	}
	return files, nil
}

// parseSeedFile decodes one seed file, transparently handling gzip.
func parseSeedFile(ctx context.Context, path string) ([]eventJSON, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var events []eventJSON
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, errors.Wrap(err, "decode JSON")
	}
	return events, nil
}

// dedupe merges per-file event lists, dropping repeated event and ticket
// type IDs. The bloom filter screens the common no-duplicate case; the exact
// sets confirm, so a filter false positive never drops real data.
func dedupe(parsed [][]eventJSON) ([]eventJSON, int) {
	var (
		filter     = bloom.NewWithEstimates(dedupeCapacity, dedupeFPR)
		seenEvents = make(map[string]int) // event ID -> index in out
		seenTypes  = make(map[string]struct{})
		out        []eventJSON
		tickets    int
	)

	for _, events := range parsed {
		for _, ev := range events {
			idx, ok := seenEvents[ev.ID]
			if !ok {
				idx = len(out)
				seenEvents[ev.ID] = idx
				out = append(out, eventJSON{ID: ev.ID, Name: ev.Name, StartsAt: ev.StartsAt})
			}

			for _, tt := range ev.TicketTypes {
				if filter.TestString(tt.ID) {
					if _, dup := seenTypes[tt.ID]; dup {
						continue
					}
				}
				filter.AddString(tt.ID)
				seenTypes[tt.ID] = struct{}{}
				out[idx].TicketTypes = append(out[idx].TicketTypes, tt)
				tickets++
			}
		}
	}

	return out, tickets
}

// writeSeed upserts events and their ticket types. Ticket type upserts never
// touch the sold counter; that column belongs to the admission path.
func writeSeed(ctx context.Context, pool *pgxpool.Pool, events []eventJSON) error {
	const (
		upsertEventSQL = `INSERT INTO events (id, name, starts_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, starts_at = EXCLUDED.starts_at`

		upsertTicketTypeSQL = `INSERT INTO ticket_types (id, event_id, name, price, capacity)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				capacity = EXCLUDED.capacity`
	)

	written := 0
	for _, ev := range events {
		if _, err := pool.Exec(ctx, upsertEventSQL, ev.ID, ev.Name, ev.StartsAt); err != nil {
			return errors.Wrapf(err, "upsert event %s", ev.ID)
		}

		for _, tt := range ev.TicketTypes {
			if _, err := pool.Exec(ctx, upsertTicketTypeSQL,
				tt.ID, ev.ID, tt.Name, tt.Price, tt.Capacity,
			); err != nil {
				return errors.Wrapf(err, "upsert ticket type %s", tt.ID)
			}
			written++
			if written%100 == 0 {
				slog.Info("write progress", slog.Int("ticket_types", written))
			}
		}
	}

	slog.Info("write complete", slog.Int("events", len(events)), slog.Int("ticket_types", written))
	return nil
}
