package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/finsync/internal/domain"
	"github.com/avolkov/finsync/internal/syncer"
	"github.com/google/uuid"
)

// Store is the Postgres persistence layer for accounts, transactions and
// summaries. It implements syncer.AccountStore and
// syncer.TransactionStore plus the category and summary write seams used
// by the later pipeline stages.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AccountsByMember implements syncer.AccountStore.
func (s *Store) AccountsByMember(ctx context.Context, memberID string) ([]domain.Account, error) {
	const query = `
		SELECT id, member_id, account_num, organization, credential_id
		FROM accounts WHERE member_id = $1`

	rows, err := s.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("AccountsByMember: querying member %s: %w", memberID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.MemberID, &a.AccountNumber, &a.Organization, &a.CredentialID); err != nil {
			return nil, fmt.Errorf("AccountsByMember: scanning row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AccountsByMember: iterating rows: %w", err)
	}
	return accounts, nil
}

// AccountByNumber implements syncer.AccountStore.
func (s *Store) AccountByNumber(ctx context.Context, memberID, accountNumber string) (domain.Account, error) {
	const query = `
		SELECT id, member_id, account_num, organization, credential_id
		FROM accounts WHERE member_id = $1 AND account_num = $2`

	var a domain.Account
	err := s.db.QueryRowContext(ctx, query, memberID, accountNumber).
		Scan(&a.ID, &a.MemberID, &a.AccountNumber, &a.Organization, &a.CredentialID)
	if err == sql.ErrNoRows {
		return domain.Account{}, fmt.Errorf("AccountByNumber: account %s not found for member %s", accountNumber, memberID)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("AccountByNumber: querying account %s: %w", accountNumber, err)
	}
	return a, nil
}

// LastTransactionDate implements syncer.TransactionStore. It returns the
// incremental sync cursor: the most recent transaction date already
// stored for the account.
func (s *Store) LastTransactionDate(ctx context.Context, memberID, accountID string) (time.Time, bool, error) {
	const query = `
		SELECT MAX(transaction_date) FROM transactions
		WHERE member_id = $1 AND account_id = $2`

	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, query, memberID, accountID).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("LastTransactionDate: querying account %s: %w", accountID, err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return last.Time, true, nil
}

// SaveTransactions implements syncer.TransactionStore. The whole batch
// is written inside one database transaction; a failure leaves no
// partial rows behind. Saving an empty batch is a no-op.
func (s *Store) SaveTransactions(ctx context.Context, account domain.Account, raws []syncer.RawTransaction) ([]domain.TransactionRecord, error) {
	if len(raws) == 0 {
		return nil, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SaveTransactions: beginning tx: %w", err)
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const query = `
		INSERT INTO transactions
			(id, member_id, account_id, account_num, transaction_date, transaction_time,
			 debit, credit, balance_after, description, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)`

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SaveTransactions: preparing insert: %w", err)
	}
	defer stmt.Close()

	records := make([]domain.TransactionRecord, 0, len(raws))
	for _, raw := range raws {
		record := domain.TransactionRecord{
			ID:              uuid.NewString(),
			MemberID:        account.MemberID,
			AccountID:       account.ID,
			AccountNumber:   account.AccountNumber,
			TransactionDate: raw.Date,
			TransactionTime: raw.Time,
			Debit:           raw.Debit,
			Credit:          raw.Credit,
			BalanceAfter:    raw.BalanceAfter,
			Description:     raw.Description,
		}

		_, err = stmt.ExecContext(ctx,
			record.ID, record.MemberID, record.AccountID, record.AccountNumber,
			record.TransactionDate, record.TransactionTime,
			record.Debit, record.Credit, record.BalanceAfter, record.Description)
		if err != nil {
			return nil, fmt.Errorf("SaveTransactions: inserting transaction: %w", err)
		}
		records = append(records, record)
	}

	if err = dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("SaveTransactions: committing: %w", err)
	}
	return records, nil
}

// UpdateCategories writes category assignments back to the transactions
// table. Only CategoryID is mutable after insert; records with a nil
// category are left untouched.
func (s *Store) UpdateCategories(ctx context.Context, records []domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpdateCategories: beginning tx: %w", err)
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const query = `UPDATE transactions SET category_id = $1 WHERE id = $2`

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("UpdateCategories: preparing update: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if record.CategoryID == nil {
			continue
		}
		if _, err = stmt.ExecContext(ctx, *record.CategoryID, record.ID); err != nil {
			return fmt.Errorf("UpdateCategories: updating transaction %s: %w", record.ID, err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("UpdateCategories: committing: %w", err)
	}
	return nil
}

// TransactionsByAccount returns every stored transaction for the
// account, oldest first. Used by the summary computer and the API.
func (s *Store) TransactionsByAccount(ctx context.Context, memberID, accountID string) ([]domain.TransactionRecord, error) {
	const query = `
		SELECT id, member_id, account_id, account_num, transaction_date, transaction_time,
		       debit, credit, balance_after, description, category_id
		FROM transactions
		WHERE member_id = $1 AND account_id = $2
		ORDER BY transaction_date, transaction_time`

	rows, err := s.db.QueryContext(ctx, query, memberID, accountID)
	if err != nil {
		return nil, fmt.Errorf("TransactionsByAccount: querying account %s: %w", accountID, err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		var r domain.TransactionRecord
		var categoryID sql.NullString
		err := rows.Scan(&r.ID, &r.MemberID, &r.AccountID, &r.AccountNumber,
			&r.TransactionDate, &r.TransactionTime,
			&r.Debit, &r.Credit, &r.BalanceAfter, &r.Description, &categoryID)
		if err != nil {
			return nil, fmt.Errorf("TransactionsByAccount: scanning row: %w", err)
		}
		if categoryID.Valid {
			r.CategoryID = &categoryID.String
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("TransactionsByAccount: iterating rows: %w", err)
	}
	return records, nil
}

// ReplaceSummaries swaps the account's rollup rows for freshly computed
// ones in a single transaction, so readers never see a half-written set.
func (s *Store) ReplaceSummaries(ctx context.Context, memberID, accountID string, summaries []domain.Summary) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReplaceSummaries: beginning tx: %w", err)
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const deleteQuery = `DELETE FROM summaries WHERE member_id = $1 AND account_id = $2`
	if _, err = dbTx.ExecContext(ctx, deleteQuery, memberID, accountID); err != nil {
		return fmt.Errorf("ReplaceSummaries: clearing account %s: %w", accountID, err)
	}

	const insertQuery = `
		INSERT INTO summaries
			(member_id, account_id, period, period_start, total_in, total_out, net, tx_count, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	stmt, err := dbTx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("ReplaceSummaries: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range summaries {
		_, err = stmt.ExecContext(ctx,
			row.MemberID, row.AccountID, string(row.Period), row.PeriodStart,
			row.TotalIn, row.TotalOut, row.Net, row.Count, row.ComputedAt)
		if err != nil {
			return fmt.Errorf("ReplaceSummaries: inserting %s row: %w", row.Period, err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("ReplaceSummaries: committing: %w", err)
	}
	return nil
}

// SummariesByAccount returns the stored rollups for one account.
func (s *Store) SummariesByAccount(ctx context.Context, memberID, accountID string) ([]domain.Summary, error) {
	const query = `
		SELECT member_id, account_id, period, period_start, total_in, total_out, net, tx_count, computed_at
		FROM summaries
		WHERE member_id = $1 AND account_id = $2
		ORDER BY period, period_start`

	rows, err := s.db.QueryContext(ctx, query, memberID, accountID)
	if err != nil {
		return nil, fmt.Errorf("SummariesByAccount: querying account %s: %w", accountID, err)
	}
	defer rows.Close()

	var summaries []domain.Summary
	for rows.Next() {
		var row domain.Summary
		var period string
		err := rows.Scan(&row.MemberID, &row.AccountID, &period, &row.PeriodStart,
			&row.TotalIn, &row.TotalOut, &row.Net, &row.Count, &row.ComputedAt)
		if err != nil {
			return nil, fmt.Errorf("SummariesByAccount: scanning row: %w", err)
		}
		row.Period = domain.SummaryPeriod(period)
		summaries = append(summaries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SummariesByAccount: iterating rows: %w", err)
	}
	return summaries, nil
}

// Ensure Store implements the syncer persistence seams.
var _ syncer.AccountStore = (*Store)(nil)
var _ syncer.TransactionStore = (*Store)(nil)
