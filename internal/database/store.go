package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	pkgdatabase "github.com/Vinmsh25/skillbarter/pkg/database"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// Store is the SQLite-backed persistence layer. All writes funnel through a
// single writer goroutine; reads run concurrently against the WAL database.
// The single writer also means read-modify-write of balances inside a
// settlement transaction cannot race another settlement.
type Store struct {
	db           *sql.DB
	config       *pkgdatabase.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the database, applies pragmas, and bootstraps the schema.
func NewStore(config *pkgdatabase.Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := pkgdatabase.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := pkgdatabase.Bootstrap(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			op.result <- op.operation(s.db)
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return errors.New("write operation timeout")
	case <-s.shutdown:
		return errors.New("store is shutting down")
	}
}

// CreateUser inserts a new user account.
func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, name, credits) VALUES (?, ?, ?)`,
			user.ID, user.Name, user.Credits.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

// GetUser returns a user with their current balance.
func (s *Store) GetUser(ctx context.Context, userID string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, credits FROM users WHERE id = ?`, userID)

	var user types.User
	var credits string
	if err := row.Scan(&user.ID, &user.Name, &credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	balance, err := decimal.NewFromString(credits)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}
	user.Credits = balance
	return &user, nil
}

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sessions (id, user_a, user_b, is_active, created_at, ended_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			session.ID, session.UserA, session.UserB,
			session.IsActive, session.CreatedAt, session.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_a, user_b, is_active, created_at, ended_at
		 FROM sessions WHERE id = ?`, sessionID)

	var session types.Session
	var endedAt sql.NullTime
	err := row.Scan(&session.ID, &session.UserA, &session.UserB,
		&session.IsActive, &session.CreatedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}

// ListActiveSessions returns all sessions that have not ended.
func (s *Store) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_a, user_b, is_active, created_at, ended_at
		 FROM sessions WHERE is_active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var endedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.UserA, &session.UserB,
			&session.IsActive, &session.CreatedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// InsertTimer records a newly started teaching timer.
func (s *Store) InsertTimer(ctx context.Context, timer *types.SessionTimer) error {
	return s.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO session_timers (id, session_id, teacher, started_at, stopped_at)
			 VALUES (?, ?, ?, ?, ?)`,
			timer.ID, timer.SessionID, timer.Teacher, timer.StartedAt, timer.StoppedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert timer: %w", err)
		}
		return nil
	})
}

// StopTimer records the end of a running timer. Stopped timers are immutable
// history, so the update is guarded on stopped_at IS NULL.
func (s *Store) StopTimer(ctx context.Context, timerID string, stoppedAt time.Time) error {
	return s.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE session_timers SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL`,
			stoppedAt, timerID,
		)
		if err != nil {
			return fmt.Errorf("failed to stop timer: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check timer update: %w", err)
		}
		if affected == 0 {
			return types.ErrNoActiveTimer
		}
		return nil
	})
}

// GetActiveTimer returns the session's running timer, or nil when none.
func (s *Store) GetActiveTimer(ctx context.Context, sessionID string) (*types.SessionTimer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, teacher, started_at, stopped_at
		 FROM session_timers WHERE session_id = ? AND stopped_at IS NULL`, sessionID)

	timer, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return timer, nil
}

// GetSessionTimers returns every timer recorded for the session, oldest first.
func (s *Store) GetSessionTimers(ctx context.Context, sessionID string) ([]*types.SessionTimer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, teacher, started_at, stopped_at
		 FROM session_timers WHERE session_id = ? ORDER BY started_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	defer rows.Close()

	var timers []*types.SessionTimer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, timer)
	}
	return timers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTimer(row rowScanner) (*types.SessionTimer, error) {
	var timer types.SessionTimer
	var stoppedAt sql.NullTime
	err := row.Scan(&timer.ID, &timer.SessionID, &timer.Teacher,
		&timer.StartedAt, &stoppedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan timer: %w", err)
	}
	if stoppedAt.Valid {
		timer.StoppedAt = &stoppedAt.Time
	}
	return &timer, nil
}

// ApplySettlement closes the session and applies its ledger writes atomically:
// the session flip, every credit transaction, both balance updates, and the
// bank's cut either all commit or none do.
func (s *Store) ApplySettlement(ctx context.Context, mutation *types.SettlementMutation) error {
	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin settlement: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		// Flipping is_active here makes ending terminal: a session that lost
		// the race settles nothing and reports ErrAlreadyEnded.
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET is_active = 0, ended_at = ? WHERE id = ? AND is_active = 1`,
			mutation.EndedAt, mutation.SessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check session close: %w", err)
		}
		if affected == 0 {
			return types.ErrAlreadyEnded
		}

		for _, entry := range mutation.Entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO credit_transactions (id, user_id, amount, kind, session_id, description, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				entry.ID, entry.UserID, entry.Amount.String(), entry.Kind,
				entry.SessionID, entry.Description, entry.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert ledger entry: %w", err)
			}
		}

		for userID, delta := range mutation.Deltas {
			if err := adjustBalance(ctx, tx, userID, delta); err != nil {
				return err
			}
		}

		if mutation.BankCut.IsPositive() {
			if err := adjustBank(ctx, tx, mutation.BankCut); err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit settlement: %w", err)
		}

		log.Printf("Settlement committed: session=%s entries=%d bank_cut=%s",
			mutation.SessionID, len(mutation.Entries), mutation.BankCut.String())
		return nil
	})
}

func adjustBalance(ctx context.Context, tx *sql.Tx, userID string, delta decimal.Decimal) error {
	var credits string
	err := tx.QueryRowContext(ctx,
		`SELECT credits FROM users WHERE id = ?`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrUserNotFound
		}
		return fmt.Errorf("failed to read balance: %w", err)
	}

	balance, err := decimal.NewFromString(credits)
	if err != nil {
		return fmt.Errorf("corrupt balance for user %s: %w", userID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET credits = ? WHERE id = ?`,
		balance.Add(delta).String(), userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func adjustBank(ctx context.Context, tx *sql.Tx, cut decimal.Decimal) error {
	var credits string
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM bank WHERE id = 1`).Scan(&credits); err != nil {
		return fmt.Errorf("failed to read bank balance: %w", err)
	}
	balance, err := decimal.NewFromString(credits)
	if err != nil {
		return fmt.Errorf("corrupt bank balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bank SET credits = ? WHERE id = 1`, balance.Add(cut).String()); err != nil {
		return fmt.Errorf("failed to update bank balance: %w", err)
	}
	return nil
}

// GetSessionTransactions returns the ledger entries a session produced,
// oldest first.
func (s *Store) GetSessionTransactions(ctx context.Context, sessionID string) ([]*types.CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, kind, session_id, description, created_at
		 FROM credit_transactions WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var entries []*types.CreditTransaction
	for rows.Next() {
		var entry types.CreditTransaction
		var amount string
		var sid sql.NullString
		if err := rows.Scan(&entry.ID, &entry.UserID, &amount, &entry.Kind,
			&sid, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount in ledger entry %s: %w", entry.ID, err)
		}
		entry.Amount = value
		if sid.Valid {
			entry.SessionID = &sid.String
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// BankBalance returns the platform account's accumulated cut.
func (s *Store) BankBalance(ctx context.Context) (decimal.Decimal, error) {
	var credits string
	if err := s.db.QueryRowContext(ctx, `SELECT credits FROM bank WHERE id = 1`).Scan(&credits); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read bank balance: %w", err)
	}
	balance, err := decimal.NewFromString(credits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt bank balance: %w", err)
	}
	return balance, nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close shuts the writer down and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
