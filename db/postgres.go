package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mww/challenge_board/model"
)

func New(ctx context.Context, connString string, clock clock.Clock) (DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &postgresDB{pool: pool, clock: clock}, nil
}

type postgresDB struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

const competitorColumns = `c.id, c.board_id, c.name, c.status, c.rating, c.deviance,
		c.wins, c.loses, c.ties, c.streak, c.last_played,
		p.id, p.user_name, p.email_address
	FROM competitors c JOIN profiles p ON p.id = c.profile_id`

const matchColumns = `id, board_id, winner_id, loser_id, tied,
		created, verification_deadline, manually_verified, resolved,
		verified, invalid, withdrawn,
		winner_rating_delta, loser_rating_delta,
		winner_deviance_delta, loser_deviance_delta,
		winner_estimated_rating, loser_estimated_rating,
		winner_estimated_deviance, loser_estimated_deviance,
		winner_comment
	FROM matches`

func (db *postgresDB) GetProfile(ctx context.Context, userName string) (*model.Profile, error) {
	const query = `SELECT id, user_name, email_address FROM profiles WHERE LOWER(user_name)=LOWER(@userName)`

	args := pgx.NamedArgs{
		"userName": userName,
	}
	var p model.Profile
	err := db.pool.QueryRow(ctx, query, args).Scan(&p.UserID, &p.UserName, &p.EmailAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("error scanning profile %s: %w", userName, err)
	}
	return &p, nil
}

func (db *postgresDB) AddProfile(ctx context.Context, p *model.Profile) error {
	if p == nil {
		return errors.New("AddProfile - profile is nil")
	}
	const query = `INSERT INTO profiles (user_name, email_address)
		VALUES (@userName, @email) RETURNING id`

	args := pgx.NamedArgs{
		"userName": p.UserName,
		"email":    p.EmailAddress,
	}
	if err := db.pool.QueryRow(ctx, query, args).Scan(&p.UserID); err != nil {
		return fmt.Errorf("error inserting profile %s: %w", p.UserName, err)
	}
	return nil
}

func (db *postgresDB) GetBoard(ctx context.Context, id int32) (*model.Board, error) {
	return db.getBoard(ctx, id, false)
}

func (db *postgresDB) GetBoardWithCompetitors(ctx context.Context, id int32) (*model.Board, error) {
	return db.getBoard(ctx, id, true)
}

func (db *postgresDB) getBoard(ctx context.Context, id int32, withCompetitors bool) (*model.Board, error) {
	const query = `SELECT id, name, owner_id, starting_rating, starting_deviance,
			auto_verification, scoring, started, ended, created
		FROM boards WHERE id=@id`

	args := pgx.NamedArgs{
		"id": id,
	}

	var b model.Board
	var ownerID pgtype.Int4
	var scoring string
	var started, ended, created pgtype.Timestamptz
	err := db.pool.QueryRow(ctx, query, args).Scan(
		&b.ID,
		&b.Name,
		&ownerID,
		&b.StartingRating,
		&b.StartingDeviance,
		&b.AutoVerification,
		&scoring,
		&started,
		&ended,
		&created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("error scanning board %d: %w", id, err)
	}

	b.Scoring = model.ScoringSystem(scoring)
	b.Started = started.Time
	b.End = ended.Time
	b.Created = created.Time

	ids := make(map[int32]*model.Competitor)
	if withCompetitors {
		b.Competitors, err = db.queryCompetitors(ctx, `SELECT `+competitorColumns+` WHERE c.board_id=@id ORDER BY c.id`, args, ids)
		if err != nil {
			return nil, fmt.Errorf("error loading competitors for board %d: %w", id, err)
		}
	}

	if ownerID.Valid {
		if err := db.loadCompetitors(ctx, []int32{ownerID.Int32}, ids); err != nil {
			return nil, err
		}
		b.Owner = ids[ownerID.Int32]
	}

	return &b, nil
}

func (db *postgresDB) AddBoard(ctx context.Context, b *model.Board, owner *model.Competitor) error {
	if b == nil || owner == nil {
		return errors.New("AddBoard - board and owner are required")
	}

	const insertBoard = `INSERT INTO boards (
		name,
		starting_rating,
		starting_deviance,
		auto_verification,
		scoring,
		started,
		ended,
		created
	) VALUES (
		@name,
		@startingRating,
		@startingDeviance,
		@autoVerification,
		@scoring,
		@started,
		@ended,
		@created
	) RETURNING id`

	const setOwner = `UPDATE boards SET owner_id=@ownerID WHERE id=@id`

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	created := db.clock.Now().UTC()
	args := pgx.NamedArgs{
		"name":             b.Name,
		"startingRating":   b.StartingRating,
		"startingDeviance": b.StartingDeviance,
		"autoVerification": b.AutoVerification,
		"scoring":          string(b.Scoring),
		"started":          timestamptz(&b.Started),
		"ended":            timestamptz(&b.End),
		"created":          timestamptz(&created),
	}
	if err := tx.QueryRow(ctx, insertBoard, args).Scan(&b.ID); err != nil {
		return fmt.Errorf("error inserting board %s: %w", b.Name, err)
	}

	owner.BoardID = b.ID
	if err := insertCompetitor(ctx, tx, owner); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, setOwner, pgx.NamedArgs{"ownerID": owner.ID, "id": b.ID})
	if err != nil {
		return fmt.Errorf("error setting owner of board %d: %w", b.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error commiting board transaction: %w", err)
	}

	b.Created = created
	b.Owner = owner
	return nil
}

func (db *postgresDB) GetCompetitorByUserName(ctx context.Context, boardID int32, userName string) (*model.Competitor, error) {
	query := `SELECT ` + competitorColumns + ` WHERE c.board_id=@boardID AND LOWER(p.user_name)=LOWER(@userName)`

	args := pgx.NamedArgs{
		"boardID":  boardID,
		"userName": userName,
	}
	c, err := scanCompetitor(db.pool.QueryRow(ctx, query, args))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompetitorNotFound
		}
		return nil, fmt.Errorf("error scanning competitor %s: %w", userName, err)
	}
	return c, nil
}

func (db *postgresDB) AddCompetitor(ctx context.Context, c *model.Competitor) error {
	if c == nil {
		return errors.New("AddCompetitor - competitor is nil")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertCompetitor(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertCompetitor(ctx context.Context, tx pgx.Tx, c *model.Competitor) error {
	const profileQuery = `SELECT id, user_name, email_address FROM profiles WHERE id=@id`
	const query = `INSERT INTO competitors (
		board_id,
		profile_id,
		name,
		status,
		rating,
		deviance
	) VALUES (
		@boardID,
		@profileID,
		@name,
		@status,
		@rating,
		@deviance
	) RETURNING id`

	var p model.Profile
	err := tx.QueryRow(ctx, profileQuery, pgx.NamedArgs{"id": c.Profile.UserID}).Scan(&p.UserID, &p.UserName, &p.EmailAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("error loading profile %d: %w", c.Profile.UserID, err)
	}

	args := pgx.NamedArgs{
		"boardID":   c.BoardID,
		"profileID": p.UserID,
		"name":      c.Name,
		"status":    int(c.Status),
		"rating":    c.Rating,
		"deviance":  c.Deviance,
	}
	if err := tx.QueryRow(ctx, query, args).Scan(&c.ID); err != nil {
		return fmt.Errorf("error inserting competitor %s: %w", c.Name, err)
	}
	c.Profile = p
	return nil
}

func (db *postgresDB) GetMatch(ctx context.Context, id int32) (*model.Match, error) {
	matches, err := db.queryMatches(ctx, `SELECT `+matchColumns+` WHERE id=@id`, pgx.NamedArgs{"id": id})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrMatchNotFound
	}
	return matches[0], nil
}

func (db *postgresDB) GetUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error) {
	f := MatchFilter{BoardID: boardID, UnresolvedOnly: true}
	if verifiableOnly {
		verified := true
		f.ManuallyVerified = &verified
	}
	return db.FindMatches(ctx, f)
}

func (db *postgresDB) FindMatches(ctx context.Context, f MatchFilter) ([]*model.Match, error) {
	query := `SELECT ` + matchColumns + `
		WHERE (@boardID::integer = 0 OR board_id=@boardID)
			AND (@competitorID::integer = 0 OR winner_id=@competitorID OR loser_id=@competitorID)
			AND (NOT @unresolvedOnly::boolean OR (resolved IS NULL AND NOT invalid))
			AND (@verified::boolean IS NULL OR (manually_verified IS NOT NULL)=@verified)
			AND (@deadlineBefore::timestamptz IS NULL OR verification_deadline < @deadlineBefore)
		ORDER BY created, id`

	verified := pgtype.Bool{}
	if f.ManuallyVerified != nil {
		verified = pgtype.Bool{Bool: *f.ManuallyVerified, Valid: true}
	}
	deadline := pgtype.Timestamptz{}
	if !f.DeadlineBefore.IsZero() {
		deadline = timestamptz(&f.DeadlineBefore)
	}

	args := pgx.NamedArgs{
		"boardID":        f.BoardID,
		"competitorID":   f.CompetitorID,
		"unresolvedOnly": f.UnresolvedOnly,
		"verified":       verified,
		"deadlineBefore": deadline,
	}
	return db.queryMatches(ctx, query, args)
}

// queryMatches runs a match query and attaches the competitors. Every match in
// the result shares the same competitor instances.
func (db *postgresDB) queryMatches(ctx context.Context, query string, args pgx.NamedArgs) ([]*model.Match, error) {
	rows, err := db.pool.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("error running match query: %w", err)
	}
	defer rows.Close()

	type participants struct{ winner, loser int32 }

	results := make([]*model.Match, 0, 8)
	ids := make([]int32, 0, 16)
	refs := make([]participants, 0, 8)
	for rows.Next() {
		var p participants
		m, err := scanMatch(rows, &p.winner, &p.loser)
		if err != nil {
			return nil, fmt.Errorf("error scanning match: %w", err)
		}
		results = append(results, m)
		refs = append(refs, p)
		ids = append(ids, p.winner, p.loser)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading matches: %w", err)
	}

	competitors := make(map[int32]*model.Competitor)
	if err := db.loadCompetitors(ctx, ids, competitors); err != nil {
		return nil, err
	}
	for i, m := range results {
		m.Winner = competitors[refs[i].winner]
		m.Loser = competitors[refs[i].loser]
	}
	return results, nil
}

// loadCompetitors adds the competitors with the given ids to the map, skipping
// the ones already in it.
func (db *postgresDB) loadCompetitors(ctx context.Context, ids []int32, into map[int32]*model.Competitor) error {
	missing := make([]int32, 0, len(ids))
	for _, id := range ids {
		if _, found := into[id]; !found {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	query := `SELECT ` + competitorColumns + ` WHERE c.id = ANY(@ids)`
	_, err := db.queryCompetitors(ctx, query, pgx.NamedArgs{"ids": missing}, into)
	if err != nil {
		return fmt.Errorf("error loading competitors: %w", err)
	}
	return nil
}

func (db *postgresDB) queryCompetitors(ctx context.Context, query string, args pgx.NamedArgs, into map[int32]*model.Competitor) ([]*model.Competitor, error) {
	rows, err := db.pool.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*model.Competitor, 0, 8)
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, err
		}
		if existing, found := into[c.ID]; found {
			c = existing
		} else {
			into[c.ID] = c
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanCompetitor(row pgx.Row) (*model.Competitor, error) {
	var c model.Competitor
	var status int
	var lastPlayed pgtype.Timestamptz
	err := row.Scan(
		&c.ID,
		&c.BoardID,
		&c.Name,
		&status,
		&c.Rating,
		&c.Deviance,
		&c.Wins,
		&c.Loses,
		&c.Ties,
		&c.Streak,
		&lastPlayed,
		&c.Profile.UserID,
		&c.Profile.UserName,
		&c.Profile.EmailAddress)
	if err != nil {
		return nil, err
	}

	c.Status = model.CompetitorStatus(status)
	c.LastPlayed = timePtr(lastPlayed)
	return &c, nil
}

func scanMatch(row pgx.Row, winnerID, loserID *int32) (*model.Match, error) {
	var m model.Match
	var created, deadline, manuallyVerified, resolved pgtype.Timestamptz
	err := row.Scan(
		&m.ID,
		&m.BoardID,
		winnerID,
		loserID,
		&m.Tied,
		&created,
		&deadline,
		&manuallyVerified,
		&resolved,
		&m.Verified,
		&m.Invalid,
		&m.Withdrawn,
		&m.WinnerRatingDelta,
		&m.LoserRatingDelta,
		&m.WinnerDevianceDelta,
		&m.LoserDevianceDelta,
		&m.WinnerEstimatedRating,
		&m.LoserEstimatedRating,
		&m.WinnerEstimatedDeviance,
		&m.LoserEstimatedDeviance,
		&m.WinnerComment)
	if err != nil {
		return nil, err
	}

	m.Created = created.Time
	m.VerificationDeadline = deadline.Time
	m.ManuallyVerified = timePtr(manuallyVerified)
	m.Resolved = timePtr(resolved)
	return &m, nil
}

func (db *postgresDB) Commit(ctx context.Context, changes *Changes) error {
	if changes == nil || changes.IsEmpty() {
		return nil
	}

	const insertMatch = `INSERT INTO matches (
		board_id,
		winner_id,
		loser_id,
		tied,
		created,
		verification_deadline,
		manually_verified,
		resolved,
		verified,
		invalid,
		withdrawn,
		winner_rating_delta,
		loser_rating_delta,
		winner_deviance_delta,
		loser_deviance_delta,
		winner_estimated_rating,
		loser_estimated_rating,
		winner_estimated_deviance,
		loser_estimated_deviance,
		winner_comment
	) VALUES (
		@boardID,
		@winnerID,
		@loserID,
		@tied,
		@created,
		@deadline,
		@manuallyVerified,
		@resolved,
		@verified,
		@invalid,
		@withdrawn,
		@winnerRatingDelta,
		@loserRatingDelta,
		@winnerDevianceDelta,
		@loserDevianceDelta,
		@winnerEstimatedRating,
		@loserEstimatedRating,
		@winnerEstimatedDeviance,
		@loserEstimatedDeviance,
		@winnerComment
	) RETURNING id`

	// The resolved check keeps a resolved match terminal even if two writers race.
	const updateMatch = `UPDATE matches
		SET manually_verified=@manuallyVerified,
			resolved=@resolved,
			verified=@verified,
			invalid=@invalid,
			withdrawn=@withdrawn,
			winner_rating_delta=@winnerRatingDelta,
			loser_rating_delta=@loserRatingDelta,
			winner_deviance_delta=@winnerDevianceDelta,
			loser_deviance_delta=@loserDevianceDelta,
			winner_estimated_rating=@winnerEstimatedRating,
			loser_estimated_rating=@loserEstimatedRating,
			winner_estimated_deviance=@winnerEstimatedDeviance,
			loser_estimated_deviance=@loserEstimatedDeviance,
			winner_comment=@winnerComment
		WHERE id=@id AND resolved IS NULL`

	const updateCompetitor = `UPDATE competitors
		SET name=@name,
			status=@status,
			rating=@rating,
			deviance=@deviance,
			wins=@wins,
			loses=@loses,
			ties=@ties,
			streak=@streak,
			last_played=@lastPlayed
		WHERE id=@id`

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, m := range changes.Added() {
		if m.Winner == nil || m.Loser == nil {
			return errors.New("match requires a winner and a loser")
		}
		if err := tx.QueryRow(ctx, insertMatch, namedArgsForMatch(m)).Scan(&m.ID); err != nil {
			return fmt.Errorf("error inserting match: %w", err)
		}
	}

	for _, m := range changes.Matches() {
		tag, err := tx.Exec(ctx, updateMatch, namedArgsForMatch(m))
		if err != nil {
			return fmt.Errorf("error updating match %d: %w", m.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("error updating match %d: %w", m.ID, matchUpdateError(ctx, tx, m.ID))
		}
	}

	for _, c := range changes.Competitors() {
		args := pgx.NamedArgs{
			"id":         c.ID,
			"name":       c.Name,
			"status":     int(c.Status),
			"rating":     c.Rating,
			"deviance":   c.Deviance,
			"wins":       c.Wins,
			"loses":      c.Loses,
			"ties":       c.Ties,
			"streak":     c.Streak,
			"lastPlayed": timestamptz(c.LastPlayed),
		}
		tag, err := tx.Exec(ctx, updateCompetitor, args)
		if err != nil {
			return fmt.Errorf("error updating competitor %d: %w", c.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("error updating competitor %d: %w", c.ID, ErrCompetitorNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error commiting changes: %w", err)
	}
	return nil
}

// matchUpdateError figures out why an update didn't touch any rows.
func matchUpdateError(ctx context.Context, tx pgx.Tx, id int32) error {
	var resolved bool
	err := tx.QueryRow(ctx, `SELECT resolved IS NOT NULL FROM matches WHERE id=@id`, pgx.NamedArgs{"id": id}).Scan(&resolved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMatchNotFound
		}
		return err
	}
	if resolved {
		return ErrMatchResolved
	}
	return errors.New("match was not updated")
}

func namedArgsForMatch(m *model.Match) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":                      m.ID,
		"boardID":                 m.BoardID,
		"winnerID":                m.Winner.ID,
		"loserID":                 m.Loser.ID,
		"tied":                    m.Tied,
		"created":                 timestamptz(&m.Created),
		"deadline":                timestamptz(&m.VerificationDeadline),
		"manuallyVerified":        timestamptz(m.ManuallyVerified),
		"resolved":                timestamptz(m.Resolved),
		"verified":                m.Verified,
		"invalid":                 m.Invalid,
		"withdrawn":               m.Withdrawn,
		"winnerRatingDelta":       m.WinnerRatingDelta,
		"loserRatingDelta":        m.LoserRatingDelta,
		"winnerDevianceDelta":     m.WinnerDevianceDelta,
		"loserDevianceDelta":      m.LoserDevianceDelta,
		"winnerEstimatedRating":   m.WinnerEstimatedRating,
		"loserEstimatedRating":    m.LoserEstimatedRating,
		"winnerEstimatedDeviance": m.WinnerEstimatedDeviance,
		"loserEstimatedDeviance":  m.LoserEstimatedDeviance,
		"winnerComment":           m.WinnerComment,
	}
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{
		Time:             t.UTC(),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
