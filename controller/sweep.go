package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/model"
)

func (c *controller) SweepMatches(ctx context.Context) error {
	now := c.now()

	// Pass 1: expired matches nobody confirmed or rejected verify themselves.
	unverified := false
	expired, err := c.db.FindMatches(ctx, db.MatchFilter{
		UnresolvedOnly:   true,
		ManuallyVerified: &unverified,
		DeadlineBefore:   now,
	})
	if err != nil {
		return fmt.Errorf("error finding expired matches: %w", err)
	}

	var errs []error
	for _, boardID := range boardIDs(expired) {
		if err := c.resolveExpired(ctx, boardID, now); err != nil {
			errs = append(errs, err)
		}
	}

	// Pass 2: manually verified matches, board by board.
	verified := true
	pending, err := c.db.FindMatches(ctx, db.MatchFilter{
		UnresolvedOnly:   true,
		ManuallyVerified: &verified,
	})
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("error finding verified matches: %w", err))...)
	}
	for _, boardID := range boardIDs(pending) {
		if err := c.ProcessManualVerifications(ctx, boardID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *controller) resolveExpired(ctx context.Context, boardID int32, now time.Time) error {
	l := c.boardLock(boardID)
	l.Lock()
	defer l.Unlock()

	w, err := c.newSweepWalk(ctx, boardID)
	if err != nil {
		return err
	}

	for _, id := range w.order {
		m := w.matches[id]
		if m == nil || m.IsManuallyVerified() || !m.IsExpired(now) {
			continue
		}
		if err := w.resolve(ctx, c, m, now); err != nil {
			log.Printf("error auto verifying match %d on board %d: %v", id, boardID, err)
		}
	}

	log.Printf("board %d: %d expired matches auto verified, %d failed", boardID, w.resolved, w.failed)
	return w.err()
}

func (c *controller) ProcessManualVerifications(ctx context.Context, boardID int32) error {
	l := c.boardLock(boardID)
	l.Lock()
	defer l.Unlock()

	w, err := c.newSweepWalk(ctx, boardID)
	if err != nil {
		return err
	}
	now := c.now()

	// Competitors with an earlier match that is still waiting on verification.
	// None of their later matches can resolve until that one does.
	blocked := make(map[int32]bool)
	for _, id := range w.order {
		m := w.matches[id]
		if m == nil || !m.IsUnresolved() {
			continue
		}
		if !m.IsManuallyVerified() {
			blocked[m.Winner.ID] = true
			blocked[m.Loser.ID] = true
			continue
		}
		if blocked[m.Winner.ID] || blocked[m.Loser.ID] {
			continue
		}
		if err := w.resolve(ctx, c, m, now); err != nil {
			log.Printf("error verifying match %d on board %d: %v", id, boardID, err)
			// still unresolved, so it blocks like any other pending match
			blocked[m.Winner.ID] = true
			blocked[m.Loser.ID] = true
		}
	}

	if w.resolved > 0 || w.failed > 0 {
		log.Printf("board %d: %d verified matches resolved, %d failed", boardID, w.resolved, w.failed)
	}
	return w.err()
}

// sweepWalk walks the unresolved matches of a board in deadline order and
// resolves them one commit at a time, so a single failure doesn't stop the
// rest of the batch.
type sweepWalk struct {
	boardID  int32
	order    []int32
	matches  map[int32]*model.Match
	resolved int
	failed   int
	lastErr  error
}

func (c *controller) newSweepWalk(ctx context.Context, boardID int32) (*sweepWalk, error) {
	w := &sweepWalk{boardID: boardID}
	if err := w.load(ctx, c); err != nil {
		return nil, err
	}

	ordered := make([]*model.Match, 0, len(w.matches))
	for _, m := range w.matches {
		ordered = append(ordered, m)
	}
	slices.SortFunc(ordered, model.CompareDeadline)

	w.order = make([]int32, 0, len(ordered))
	for _, m := range ordered {
		w.order = append(w.order, m.ID)
	}
	return w, nil
}

func (w *sweepWalk) load(ctx context.Context, c *controller) error {
	unresolved, err := c.db.GetUnresolvedMatches(ctx, w.boardID, false)
	if err != nil {
		return fmt.Errorf("error loading unresolved matches for board %d: %w", w.boardID, err)
	}
	w.matches = make(map[int32]*model.Match, len(unresolved))
	for _, m := range unresolved {
		w.matches[m.ID] = m
	}
	return nil
}

func (w *sweepWalk) resolve(ctx context.Context, c *controller, m *model.Match, now time.Time) error {
	changes := db.NewChanges()
	resolve(m, now, changes)
	err := c.db.Commit(ctx, changes)
	if err == nil {
		w.resolved++
		return nil
	}

	w.failed++
	w.lastErr = err
	// The competitors in memory now hold changes that were never saved.
	if loadErr := w.load(ctx, c); loadErr != nil {
		w.matches = nil
		return errors.Join(err, loadErr)
	}
	return err
}

func (w *sweepWalk) err() error {
	if w.lastErr == nil {
		return nil
	}
	return fmt.Errorf("board %d: %d matches failed to resolve, last error: %w", w.boardID, w.failed, w.lastErr)
}

// boardIDs returns the distinct board ids of the matches, in order of first appearance.
func boardIDs(matches []*model.Match) []int32 {
	seen := make(map[int32]bool)
	ids := make([]int32, 0, 4)
	for _, m := range matches {
		if !seen[m.BoardID] {
			seen[m.BoardID] = true
			ids = append(ids, m.BoardID)
		}
	}
	return ids
}

func (c *controller) RunPeriodicSweeps(frequency time.Duration, shutdown chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	s, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("error creating sweep scheduler: %v", err)
		return
	}

	_, err = s.NewJob(
		gocron.DurationJob(frequency),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := c.SweepMatches(ctx); err != nil {
				log.Printf("%v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("sweep-matches"),
	)
	if err != nil {
		log.Printf("error scheduling sweeps: %v", err)
		return
	}

	s.Start()
	<-shutdown
	if err := s.Shutdown(); err != nil {
		log.Printf("error stopping sweep scheduler: %v", err)
	}
}
