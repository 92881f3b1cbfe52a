package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stocktracker/backend/src/models"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionStore is the persistence boundary for executed trades. List
// results are ordered chronologically (date, then insertion id) so callers
// can fold over history without re-sorting.
type TransactionStore interface {
	Create(txn *models.Transaction) error
	CreateImported(txn *models.Transaction, importBatchID string) error
	Update(txn *models.Transaction) error
	Delete(userID, txnID int64) error
	GetByID(userID, txnID int64) (*models.Transaction, error)
	ListByUser(userID int64) ([]models.Transaction, error)
	ListByUserAndSymbol(userID int64, symbol string) ([]models.Transaction, error)
}

type sqliteTransactionStore struct {
	db *sql.DB
}

func NewSQLiteTransactionStore(db *sql.DB) TransactionStore {
	return &sqliteTransactionStore{db: db}
}

const transactionColumns = `id, user_id, type, symbol, company_name, transaction_date, shares, price_per_share, broker_fee, notes, total_amount, created_at, updated_at`

func (s *sqliteTransactionStore) Create(txn *models.Transaction) error {
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	txn.CalculateTotalAmount()

	res, err := s.db.Exec(`
	INSERT INTO transactions (user_id, type, symbol, company_name, transaction_date, shares, price_per_share, broker_fee, notes, total_amount, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.UserID, string(txn.Type), txn.Symbol, txn.CompanyName,
		txn.TransactionDate.String(), txn.Shares.String(), txn.PricePerShare.String(),
		txn.BrokerFee.String(), txn.Notes, txn.TotalAmount.String(),
		txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted transaction id: %w", err)
	}
	txn.ID = id
	return nil
}

// CreateImported inserts one row produced by the CSV import pipeline, tagged
// with the batch id. Imports are independent per-row writes: one failing
// insert must not take down its siblings.
func (s *sqliteTransactionStore) CreateImported(txn *models.Transaction, importBatchID string) error {
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	txn.CalculateTotalAmount()

	res, err := s.db.Exec(`
	INSERT INTO transactions (user_id, type, symbol, company_name, transaction_date, shares, price_per_share, broker_fee, notes, total_amount, import_batch_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.UserID, string(txn.Type), txn.Symbol, txn.CompanyName,
		txn.TransactionDate.String(), txn.Shares.String(), txn.PricePerShare.String(),
		txn.BrokerFee.String(), txn.Notes, txn.TotalAmount.String(),
		importBatchID, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting imported transaction: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		txn.ID = id
	}
	return nil
}

func (s *sqliteTransactionStore) Update(txn *models.Transaction) error {
	txn.UpdatedAt = time.Now()
	txn.CalculateTotalAmount()

	res, err := s.db.Exec(`
	UPDATE transactions
	SET type = ?, symbol = ?, company_name = ?, transaction_date = ?, shares = ?, price_per_share = ?, broker_fee = ?, notes = ?, total_amount = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`,
		string(txn.Type), txn.Symbol, txn.CompanyName, txn.TransactionDate.String(),
		txn.Shares.String(), txn.PricePerShare.String(), txn.BrokerFee.String(),
		txn.Notes, txn.TotalAmount.String(), txn.UpdatedAt,
		txn.ID, txn.UserID)
	if err != nil {
		return fmt.Errorf("updating transaction %d: %w", txn.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *sqliteTransactionStore) Delete(userID, txnID int64) error {
	res, err := s.db.Exec(`DELETE FROM transactions WHERE id = ? AND user_id = ?`, txnID, userID)
	if err != nil {
		return fmt.Errorf("deleting transaction %d: %w", txnID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *sqliteTransactionStore) GetByID(userID, txnID int64) (*models.Transaction, error) {
	row := s.db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, txnID, userID)
	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

func (s *sqliteTransactionStore) ListByUser(userID int64) ([]models.Transaction, error) {
	rows, err := s.db.Query(`
	SELECT `+transactionColumns+` FROM transactions
	WHERE user_id = ?
	ORDER BY transaction_date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for user %d: %w", userID, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *sqliteTransactionStore) ListByUserAndSymbol(userID int64, symbol string) ([]models.Transaction, error) {
	rows, err := s.db.Query(`
	SELECT `+transactionColumns+` FROM transactions
	WHERE user_id = ? AND symbol = ?
	ORDER BY transaction_date ASC, id ASC`, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("listing %s transactions for user %d: %w", symbol, userID, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var txn models.Transaction
	var txnType, dateStr, sharesStr, priceStr, feeStr, totalStr string
	var companyName, notes sql.NullString

	err := row.Scan(&txn.ID, &txn.UserID, &txnType, &txn.Symbol, &companyName,
		&dateStr, &sharesStr, &priceStr, &feeStr, &notes, &totalStr,
		&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}

	txn.Type = models.TransactionType(txnType)
	txn.CompanyName = companyName.String
	txn.Notes = notes.String

	txn.TransactionDate, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("stored transaction %d has bad date: %w", txn.ID, err)
	}
	if txn.Shares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("stored transaction %d has bad shares: %w", txn.ID, err)
	}
	if txn.PricePerShare, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("stored transaction %d has bad price: %w", txn.ID, err)
	}
	if txn.BrokerFee, err = decimal.NewFromString(feeStr); err != nil {
		return nil, fmt.Errorf("stored transaction %d has bad fee: %w", txn.ID, err)
	}
	if txn.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("stored transaction %d has bad total: %w", txn.ID, err)
	}
	return &txn, nil
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}
