package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

const (
	// Sized for far more ticket types than any single deployment carries;
	// the filter is a few hundred KB at this estimate.
	filterCapacity = 100_000
	filterFPR      = 0.001

	// Upper bound on confirmed-absent IDs remembered between rebuilds.
	// Past the cap, new fabricated IDs keep hitting the database until the
	// next rebuild resets the set.
	missingCap = 10_000
)

// idFilter is a cache-penetration guard for ticket type lookups: during an
// on-sale burst, requests carrying fabricated IDs are rejected without a
// database round trip. A bloom filter never gives a false "absent" for an ID
// it was built with, but an ID created after the last rebuild tests negative
// too, so a miss alone is not proof of absence. A missed ID is handed back as
// unconfirmed exactly once; the caller settles it against the database and
// reports the verdict via confirm, after which the ID either joins the
// filter or the confirmed-absent set. Until the first successful build the
// filter passes everything through.
type idFilter struct {
	mu      sync.RWMutex
	f       *bloom.BloomFilter
	missing map[string]struct{}
}

func newIDFilter() *idFilter {
	return &idFilter{}
}

// prune splits ids by filter verdict: pass holds IDs that may exist,
// unconfirmed holds filter misses that still need a database check. IDs
// already confirmed absent since the last rebuild are dropped. With no
// filter built yet every ID passes.
func (g *idFilter) prune(ids []string) (pass, unconfirmed []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.f == nil {
		return ids, nil
	}

	// Callers keep using their slice for set comparisons; never prune in
	// place.
	pass = make([]string, 0, len(ids))
	for _, id := range ids {
		if g.f.TestString(id) {
			pass = append(pass, id)
		} else if _, absent := g.missing[id]; !absent {
			unconfirmed = append(unconfirmed, id)
		}
	}
	return pass, unconfirmed
}

// confirm records the database's verdict for IDs the filter could not vouch
// for. Found IDs join the filter so later lookups pass directly; absent IDs
// are remembered so a repeated fabricated ID stops reaching the database.
func (g *idFilter) confirm(found, absent []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.f == nil {
		return
	}
	for _, id := range found {
		g.f.AddString(id)
	}
	for _, id := range absent {
		if len(g.missing) >= missingCap {
			break
		}
		g.missing[id] = struct{}{}
	}
}

func (g *idFilter) replace(f *bloom.BloomFilter) {
	g.mu.Lock()
	g.f = f
	g.missing = make(map[string]struct{})
	g.mu.Unlock()
}

// StartIDFilterRefresh builds the known-ID filter immediately and rebuilds it
// on the given interval until ctx is cancelled. A failed rebuild keeps the
// previous filter.
func (s *Store) StartIDFilterRefresh(ctx context.Context, interval time.Duration, lg *zap.Logger) {
	rebuild := func() {
		n, err := s.rebuildIDFilter(ctx)
		if err != nil {
			lg.Warn("ticket type ID filter rebuild failed", zap.Error(err))
			return
		}
		lg.Debug("ticket type ID filter rebuilt", zap.Int("ids", n))
	}

	rebuild()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rebuild()
			}
		}
	}()
}

func (s *Store) rebuildIDFilter(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM ticket_types`)
	if err != nil {
		return 0, errors.Wrap(err, "query ticket type ids")
	}
	defer rows.Close()

	f := bloom.NewWithEstimates(filterCapacity, filterFPR)
	n := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, errors.Wrap(err, "scan ticket type id")
		}
		f.AddString(id)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "iterate ticket type ids")
	}

	s.filter.replace(f)
	return n, nil
}
