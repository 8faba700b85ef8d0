package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azubet/azubet/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. The lifecycle rules
// live here: status updates are checked against the legal transition table
// inside a row-locking transaction, and chain id assignment is idempotent.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Create inserts a new bet attempt.
func (s *BetStore) Create(ctx context.Context, b domain.BetAttempt) error {
	selections, err := json.Marshal(b.Selections)
	if err != nil {
		return fmt.Errorf("postgres: marshal selections: %w", err)
	}

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO bets (
			local_id, wallet, bet_id, tx_hash, order_id,
			selections, amount, odds, status, result, payout,
			created_at, settled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		b.LocalID, b.Wallet,
		nullable(b.BetID), nullable(b.TxHash), nullable(b.OrderID),
		selections, b.Amount, b.Odds,
		string(b.Status), nullable(string(b.Result)), nullable(b.Payout),
		createdAt, b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.LocalID, err)
	}
	return nil
}

// GetByLocalID retrieves a bet attempt by its local ledger id.
func (s *BetStore) GetByLocalID(ctx context.Context, localID string) (domain.BetAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE local_id = $1`, localID)

	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BetAttempt{}, domain.ErrNotFound
		}
		return domain.BetAttempt{}, fmt.Errorf("postgres: get bet %s: %w", localID, err)
	}
	return b, nil
}

// GetByBetID retrieves a bet attempt by its on-chain bet id.
func (s *BetStore) GetByBetID(ctx context.Context, betID string) (domain.BetAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE bet_id = $1`, betID)

	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BetAttempt{}, domain.ErrNotFound
		}
		return domain.BetAttempt{}, fmt.Errorf("postgres: get bet by bet id %s: %w", betID, err)
	}
	return b, nil
}

// UpdateStatus moves a record along the lifecycle. The current status is read
// under a row lock and the move is validated against the transition table
// before anything is written.
func (s *BetStore) UpdateStatus(ctx context.Context, localID string, status domain.BetStatus, result domain.BetResult, payout string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin update status: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM bets WHERE local_id = $1 FOR UPDATE`, localID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock bet %s: %w", localID, err)
	}

	if !domain.CanTransition(domain.BetStatus(current), status) {
		return fmt.Errorf("postgres: bet %s: %s -> %s: %w",
			localID, current, status, domain.ErrIllegalTransition)
	}

	query := `UPDATE bets SET status = $1, updated_at = NOW()`
	args := []any{string(status)}
	argIdx := 2

	if result != "" {
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, string(result))
		argIdx++
	}
	if payout != "" {
		query += fmt.Sprintf(", payout = $%d", argIdx)
		args = append(args, payout)
		argIdx++
	}
	if status == domain.BetStatusSettled || status == domain.BetStatusCanceled {
		query += ", settled_at = NOW()"
	}
	query += fmt.Sprintf(" WHERE local_id = $%d", argIdx)
	args = append(args, localID)

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: update bet status %s: %w", localID, err)
	}
	return tx.Commit(ctx)
}

// SetOrderID records the relayer order id after submission.
func (s *BetStore) SetOrderID(ctx context.Context, localID, orderID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET order_id = $1, updated_at = NOW() WHERE local_id = $2`,
		orderID, localID)
	if err != nil {
		return fmt.Errorf("postgres: set order id %s: %w", localID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AssignChainIDs ties a record to an on-chain bet. Re-assigning the same
// values is a no-op; differing values fail with ErrChainIDConflict.
func (s *BetStore) AssignChainIDs(ctx context.Context, localID, betID, txHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin assign chain ids: %w", err)
	}
	defer tx.Rollback(ctx)

	var curBetID, curTxHash *string
	err = tx.QueryRow(ctx,
		`SELECT bet_id, tx_hash FROM bets WHERE local_id = $1 FOR UPDATE`, localID,
	).Scan(&curBetID, &curTxHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock bet %s: %w", localID, err)
	}

	if curBetID != nil && (*curBetID != betID || deref(curTxHash) != txHash) {
		return fmt.Errorf("postgres: bet %s has bet id %s: %w",
			localID, *curBetID, domain.ErrChainIDConflict)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bets SET bet_id = $1, tx_hash = $2, updated_at = NOW() WHERE local_id = $3`,
		betID, txHash, localID,
	); err != nil {
		return fmt.Errorf("postgres: assign chain ids %s: %w", localID, err)
	}
	return tx.Commit(ctx)
}

// Recover restores a ghost-cleanup record found by the strict recovery pass.
// It refuses records whose result is anything else.
func (s *BetStore) Recover(ctx context.Context, localID, betID, txHash string, status domain.BetStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin recover: %w", err)
	}
	defer tx.Rollback(ctx)

	var curStatus string
	var curResult *string
	err = tx.QueryRow(ctx,
		`SELECT status, result FROM bets WHERE local_id = $1 FOR UPDATE`, localID,
	).Scan(&curStatus, &curResult)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock bet %s: %w", localID, err)
	}

	if curStatus != string(domain.BetStatusFailed) ||
		deref(curResult) != string(domain.BetResultGhostCleanup) {
		return fmt.Errorf("postgres: bet %s is %s/%s, not a cleaned-up ghost: %w",
			localID, curStatus, deref(curResult), domain.ErrIllegalTransition)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bets
		 SET bet_id = $1, tx_hash = $2, status = $3, result = NULL, updated_at = NOW()
		 WHERE local_id = $4`,
		betID, txHash, string(status), localID,
	); err != nil {
		return fmt.Errorf("postgres: recover bet %s: %w", localID, err)
	}
	return tx.Commit(ctx)
}

// Query returns bet attempts matching the filter, newest first.
func (s *BetStore) Query(ctx context.Context, f domain.BetFilter) ([]domain.BetAttempt, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Wallet != "" {
		query += fmt.Sprintf(" AND wallet = $%d", argIdx)
		args = append(args, f.Wallet)
		argIdx++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if f.Result != "" {
		query += fmt.Sprintf(" AND result = $%d", argIdx)
		args = append(args, string(f.Result))
		argIdx++
	}
	if f.WithoutChain {
		query += " AND bet_id IS NULL AND tx_hash IS NULL"
	}
	if f.Before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *f.Before)
		argIdx++
	}
	if f.After != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *f.After)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query bets: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bets: %w", err)
	}
	return bets, nil
}

// ListBefore returns terminal records settled or failed strictly before the
// cutoff, oldest first, for archival.
func (s *BetStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BetAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets
		 WHERE status IN ('settled', 'canceled', 'rejected', 'failed')
		   AND COALESCE(settled_at, updated_at) < $1
		 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets before: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan archived bets: %w", err)
	}
	return bets, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

const betSelectCols = `local_id, wallet, bet_id, tx_hash, order_id,
	selections, amount, odds, status, result, payout,
	created_at, settled_at`

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.BetAttempt, error) {
	var b domain.BetAttempt
	var betID, txHash, orderID, result, payout *string
	var selections []byte
	var status string

	err := scanner.Scan(
		&b.LocalID, &b.Wallet, &betID, &txHash, &orderID,
		&selections, &b.Amount, &b.Odds, &status, &result, &payout,
		&b.CreatedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.BetAttempt{}, err
	}

	if err := json.Unmarshal(selections, &b.Selections); err != nil {
		return domain.BetAttempt{}, fmt.Errorf("unmarshal selections: %w", err)
	}

	b.BetID = deref(betID)
	b.TxHash = deref(txHash)
	b.OrderID = deref(orderID)
	b.Status = domain.BetStatus(status)
	b.Result = domain.BetResult(deref(result))
	b.Payout = deref(payout)
	return b, nil
}

func scanBetRows(rows pgx.Rows) ([]domain.BetAttempt, error) {
	var bets []domain.BetAttempt
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
