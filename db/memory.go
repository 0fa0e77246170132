package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/mww/challenge_board/model"
)

// NewMemory returns a DB that keeps everything in memory. Every read returns
// copies, so nothing a caller does is visible until it is committed.
func NewMemory(clock clock.Clock) DB {
	return &memoryDB{
		clock:       clock,
		profiles:    make(map[int32]model.Profile),
		boards:      make(map[int32]boardRow),
		competitors: make(map[int32]model.Competitor),
		matches:     make(map[int32]matchRow),
	}
}

type boardRow struct {
	board   model.Board
	ownerID int32
}

type matchRow struct {
	match    model.Match
	winnerID int32
	loserID  int32
}

type memoryDB struct {
	mu    sync.RWMutex
	clock clock.Clock

	profiles    map[int32]model.Profile
	boards      map[int32]boardRow
	competitors map[int32]model.Competitor
	matches     map[int32]matchRow

	nextProfileID    int32
	nextBoardID      int32
	nextCompetitorID int32
	nextMatchID      int32
}

func (db *memoryDB) GetProfile(ctx context.Context, userName string) (*model.Profile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, p := range db.profiles {
		if strings.EqualFold(p.UserName, userName) {
			return &p, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (db *memoryDB) AddProfile(ctx context.Context, p *model.Profile) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.profiles {
		if strings.EqualFold(existing.UserName, p.UserName) {
			return fmt.Errorf("profile %s already exists", p.UserName)
		}
	}
	db.nextProfileID++
	p.UserID = db.nextProfileID
	db.profiles[p.UserID] = *p
	return nil
}

func (db *memoryDB) GetBoard(ctx context.Context, id int32) (*model.Board, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.loadBoard(id, newIdentityMap(db), false)
}

func (db *memoryDB) GetBoardWithCompetitors(ctx context.Context, id int32) (*model.Board, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.loadBoard(id, newIdentityMap(db), true)
}

func (db *memoryDB) loadBoard(id int32, ids *identityMap, withCompetitors bool) (*model.Board, error) {
	row, found := db.boards[id]
	if !found {
		return nil, ErrBoardNotFound
	}

	b := row.board
	b.Owner = ids.competitor(row.ownerID)
	b.Competitors = nil

	if withCompetitors {
		b.Competitors = make([]*model.Competitor, 0, 8)
		for cid, c := range db.competitors {
			if c.BoardID == id {
				b.Competitors = append(b.Competitors, ids.competitor(cid))
			}
		}
		slices.SortFunc(b.Competitors, func(x, y *model.Competitor) int { return int(x.ID - y.ID) })
	}
	return &b, nil
}

func (db *memoryDB) AddBoard(ctx context.Context, b *model.Board, owner *model.Competitor) error {
	if b == nil || owner == nil {
		return errors.New("AddBoard - board and owner are required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	p, found := db.profiles[owner.Profile.UserID]
	if !found {
		return ErrProfileNotFound
	}

	db.nextBoardID++
	b.ID = db.nextBoardID
	b.Created = db.clock.Now().UTC()

	db.nextCompetitorID++
	owner.ID = db.nextCompetitorID
	owner.BoardID = b.ID
	owner.Profile = p
	db.competitors[owner.ID] = *owner

	row := boardRow{board: *b, ownerID: owner.ID}
	row.board.Owner = nil
	row.board.Competitors = nil
	db.boards[b.ID] = row

	b.Owner = owner
	return nil
}

func (db *memoryDB) GetCompetitorByUserName(ctx context.Context, boardID int32, userName string) (*model.Competitor, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, c := range db.competitors {
		if c.BoardID == boardID && c.Is(userName) {
			return copyCompetitor(c), nil
		}
	}
	return nil, ErrCompetitorNotFound
}

func (db *memoryDB) AddCompetitor(ctx context.Context, c *model.Competitor) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, found := db.boards[c.BoardID]; !found {
		return ErrBoardNotFound
	}
	p, found := db.profiles[c.Profile.UserID]
	if !found {
		return ErrProfileNotFound
	}
	for _, existing := range db.competitors {
		if existing.BoardID == c.BoardID && existing.Profile.UserID == p.UserID {
			return fmt.Errorf("%s is already a competitor on board %d", p.UserName, c.BoardID)
		}
	}

	db.nextCompetitorID++
	c.ID = db.nextCompetitorID
	c.Profile = p
	db.competitors[c.ID] = *c
	return nil
}

func (db *memoryDB) GetMatch(ctx context.Context, id int32) (*model.Match, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row, found := db.matches[id]
	if !found {
		return nil, ErrMatchNotFound
	}
	return newIdentityMap(db).match(row), nil
}

func (db *memoryDB) GetUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error) {
	f := MatchFilter{BoardID: boardID, UnresolvedOnly: true}
	if verifiableOnly {
		verified := true
		f.ManuallyVerified = &verified
	}
	return db.FindMatches(ctx, f)
}

func (db *memoryDB) FindMatches(ctx context.Context, f MatchFilter) ([]*model.Match, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := newIdentityMap(db)
	res := make([]*model.Match, 0, 8)
	for _, row := range db.matches {
		m := ids.match(row)
		if f.matches(m) {
			res = append(res, m)
		}
	}
	slices.SortFunc(res, model.CompareCreated)
	return res, nil
}

func (db *memoryDB) Commit(ctx context.Context, changes *Changes) error {
	if changes == nil || changes.IsEmpty() {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// Validate everything before touching any state.
	for _, m := range changes.Added() {
		if _, found := db.boards[m.BoardID]; !found {
			return ErrBoardNotFound
		}
		if err := db.checkParticipants(m); err != nil {
			return err
		}
	}
	for _, m := range changes.Matches() {
		row, found := db.matches[m.ID]
		if !found {
			return fmt.Errorf("error updating match %d: %w", m.ID, ErrMatchNotFound)
		}
		if row.match.IsResolved() {
			return fmt.Errorf("error updating match %d: %w", m.ID, ErrMatchResolved)
		}
	}
	for _, c := range changes.Competitors() {
		if _, found := db.competitors[c.ID]; !found {
			return fmt.Errorf("error updating competitor %d: %w", c.ID, ErrCompetitorNotFound)
		}
	}

	for _, m := range changes.Added() {
		db.nextMatchID++
		m.ID = db.nextMatchID
		db.matches[m.ID] = toMatchRow(m)
	}
	for _, m := range changes.Matches() {
		db.matches[m.ID] = toMatchRow(m)
	}
	for _, c := range changes.Competitors() {
		stored := *copyCompetitor(*c)
		// the profile belongs to the profiles table
		stored.Profile = db.competitors[c.ID].Profile
		db.competitors[c.ID] = stored
	}
	return nil
}

func (db *memoryDB) checkParticipants(m *model.Match) error {
	if m.Winner == nil || m.Loser == nil {
		return errors.New("match requires a winner and a loser")
	}
	for _, c := range []*model.Competitor{m.Winner, m.Loser} {
		stored, found := db.competitors[c.ID]
		if !found {
			return ErrCompetitorNotFound
		}
		if stored.BoardID != m.BoardID {
			return fmt.Errorf("competitor %d is not on board %d", c.ID, m.BoardID)
		}
	}
	return nil
}

// identityMap makes sure that all the matches returned from a single call
// share the same competitor instances.
type identityMap struct {
	db          *memoryDB
	competitors map[int32]*model.Competitor
}

func newIdentityMap(db *memoryDB) *identityMap {
	return &identityMap{db: db, competitors: make(map[int32]*model.Competitor)}
}

func (m *identityMap) competitor(id int32) *model.Competitor {
	if c, found := m.competitors[id]; found {
		return c
	}
	stored, found := m.db.competitors[id]
	if !found {
		return nil
	}
	c := copyCompetitor(stored)
	m.competitors[id] = c
	return c
}

func (m *identityMap) match(row matchRow) *model.Match {
	res := row.match
	res.ManuallyVerified = copyTime(row.match.ManuallyVerified)
	res.Resolved = copyTime(row.match.Resolved)
	res.Winner = m.competitor(row.winnerID)
	res.Loser = m.competitor(row.loserID)
	return &res
}

func toMatchRow(m *model.Match) matchRow {
	row := matchRow{match: *m, winnerID: m.Winner.ID, loserID: m.Loser.ID}
	row.match.Winner = nil
	row.match.Loser = nil
	row.match.ManuallyVerified = copyTime(m.ManuallyVerified)
	row.match.Resolved = copyTime(m.Resolved)
	return row
}

func copyCompetitor(c model.Competitor) *model.Competitor {
	c.LastPlayed = copyTime(c.LastPlayed)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
