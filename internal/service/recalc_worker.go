package service

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CaseChangeChannel is the PostgreSQL NOTIFY channel fired by the case
// repository whenever a flag lands or a case resolves.
const CaseChangeChannel = "case_changes"

// RecalcWorker listens for PostgreSQL NOTIFY on the case-change channel
// and batches case-score recomputation. If fifty flags land on case X
// inside one window, it recalculates once.
type RecalcWorker struct {
	pool     *pgxpool.Pool
	scoreSvc *ScoreService
	cache    *CacheService
	batchMs  time.Duration

	mu      sync.Mutex
	pending map[string]struct{} // case IDs waiting for recalculation
}

// NewRecalcWorker creates a score recalculation worker.
func NewRecalcWorker(pool *pgxpool.Pool, scoreSvc *ScoreService, cache *CacheService) *RecalcWorker {
	return &RecalcWorker{
		pool:     pool,
		scoreSvc: scoreSvc,
		cache:    cache,
		batchMs:  5 * time.Second,
		pending:  make(map[string]struct{}),
	}
}

// Start begins listening for case_changes notifications and processing
// batches. Blocks until ctx is cancelled.
func (w *RecalcWorker) Start(ctx context.Context) {
	log.Printf("recalc-worker: starting (batch window=%s)", w.batchMs)

	for {
		if err := w.listenLoop(ctx); err != nil {
			if ctx.Err() != nil {
				log.Println("recalc-worker: stopping (context cancelled)")
				return
			}
			log.Printf("recalc-worker: listen error, reconnecting in 5s: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				log.Println("recalc-worker: stopping (context cancelled)")
				return
			}
		}
	}
}

// listenLoop acquires a dedicated connection, LISTENs on case_changes,
// and collects notifications into batched windows.
func (w *RecalcWorker) listenLoop(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "LISTEN "+CaseChangeChannel)
	if err != nil {
		return err
	}
	log.Println("recalc-worker: listening on " + CaseChangeChannel)

	flushCtx, flushCancel := context.WithCancel(ctx)
	defer flushCancel()
	go w.flushLoop(flushCtx)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		caseID := notification.Payload
		if caseID == "" {
			continue
		}

		w.mu.Lock()
		w.pending[caseID] = struct{}{}
		w.mu.Unlock()
	}
}

// flushLoop periodically drains the pending set and recalculates scores.
func (w *RecalcWorker) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.batchMs)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush(ctx)
		case <-ctx.Done():
			// Final flush before exit
			w.flush(context.Background())
			return
		}
	}
}

// flush drains the pending set and recalculates each case's score.
func (w *RecalcWorker) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	// Swap out the pending map
	batch := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	recalculated := 0
	for rawID := range batch {
		caseID, err := parseCaseID(rawID)
		if err != nil {
			log.Printf("recalc-worker: bad case id %q: %v", rawID, err)
			continue
		}
		if err := w.scoreSvc.RecalculateCaseScore(ctx, caseID); err != nil {
			log.Printf("recalc-worker: recalculate error for case %d: %v", caseID, err)
			continue
		}
		recalculated++
	}

	if recalculated > 0 {
		// Report pages embed the aggregate, so drop them.
		w.cache.InvalidateReports(ctx)
		log.Printf("recalc-worker: batch complete — %d cases recalculated (from %d notifications)",
			recalculated, len(batch))
	}
}

func parseCaseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
