package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"invest-referral/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletRepository определяет интерфейс для работы с кошельками.
// Зачисление выполняется только в рамках внешней транзакции, чтобы
// изменение баланса и смена статуса начисления были атомарны.
type WalletRepository interface {
	Get(ctx context.Context, userID int64, currency models.Currency) (*models.Wallet, error)
	CreditTx(ctx context.Context, tx pgx.Tx, credit WalletCredit) (*models.WalletTransaction, error)
	GetTransactions(ctx context.Context, userID int64, limit int) ([]*models.WalletTransaction, error)
}

// WalletCredit описывает одно зачисление на кошелек
type WalletCredit struct {
	UserID      int64
	Currency    models.Currency
	Amount      decimal.Decimal
	Type        models.WalletTransactionType
	ReferenceID string
	Description string
}

// PostgresWalletRepository реализует WalletRepository для PostgreSQL
type PostgresWalletRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewWalletRepository создает новый репозиторий кошельков
func NewWalletRepository(db *pgxpool.Pool, logger *zap.Logger) WalletRepository {
	return &PostgresWalletRepository{
		db:     db,
		logger: logger,
	}
}

// Get получает кошелек пользователя в указанной валюте
func (r *PostgresWalletRepository) Get(ctx context.Context, userID int64, currency models.Currency) (*models.Wallet, error) {
	query := `
		SELECT id, user_id, currency, balance, is_active, created_at, updated_at
		FROM wallets
		WHERE user_id = $1 AND currency = $2`

	wallet := &models.Wallet{}
	err := r.db.QueryRow(ctx, query, userID, currency).Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.Currency,
		&wallet.Balance,
		&wallet.IsActive,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("кошелек не найден: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения кошелька: %w", err)
	}

	return wallet, nil
}

// CreditTx атомарно зачисляет сумму на кошелек в рамках транзакции.
// Кошелек создается при первом зачислении. Изменение баланса - одно
// UPSERT-выражение, строка кошелька остается заблокированной до фиксации.
// В той же транзакции создается запись журнала операций.
func (r *PostgresWalletRepository) CreditTx(ctx context.Context, tx pgx.Tx, credit WalletCredit) (*models.WalletTransaction, error) {
	if !credit.Amount.IsPositive() {
		return nil, fmt.Errorf("сумма зачисления должна быть положительной: %s", credit.Amount)
	}

	now := time.Now()

	upsert := `
		INSERT INTO wallets (user_id, currency, balance, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, $4, $4)
		ON CONFLICT (user_id, currency)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance`

	var balanceAfter decimal.Decimal
	err := tx.QueryRow(ctx, upsert, credit.UserID, credit.Currency, credit.Amount, now).Scan(&balanceAfter)
	if err != nil {
		return nil, fmt.Errorf("ошибка зачисления на кошелек: %w", err)
	}

	walletTx := &models.WalletTransaction{
		UserID:        credit.UserID,
		Type:          credit.Type,
		Currency:      credit.Currency,
		Amount:        credit.Amount,
		BalanceBefore: balanceAfter.Sub(credit.Amount),
		BalanceAfter:  balanceAfter,
		ReferenceID:   credit.ReferenceID,
		Description:   credit.Description,
		CreatedAt:     now,
	}

	insertLog := `
		INSERT INTO wallet_transactions (user_id, type, currency, amount,
		                                 balance_before, balance_after, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err = tx.QueryRow(ctx, insertLog,
		walletTx.UserID,
		walletTx.Type,
		walletTx.Currency,
		walletTx.Amount,
		walletTx.BalanceBefore,
		walletTx.BalanceAfter,
		walletTx.ReferenceID,
		walletTx.Description,
		walletTx.CreatedAt,
	).Scan(&walletTx.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи журнала кошелька: %w", err)
	}

	return walletTx, nil
}

// GetTransactions получает последние операции по кошелькам пользователя
func (r *PostgresWalletRepository) GetTransactions(ctx context.Context, userID int64, limit int) ([]*models.WalletTransaction, error) {
	query := `
		SELECT id, user_id, type, currency, amount, balance_before, balance_after,
		       reference_id, description, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения операций по кошельку: %w", err)
	}
	defer rows.Close()

	var txs []*models.WalletTransaction
	for rows.Next() {
		walletTx := &models.WalletTransaction{}
		err := rows.Scan(
			&walletTx.ID,
			&walletTx.UserID,
			&walletTx.Type,
			&walletTx.Currency,
			&walletTx.Amount,
			&walletTx.BalanceBefore,
			&walletTx.BalanceAfter,
			&walletTx.ReferenceID,
			&walletTx.Description,
			&walletTx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования операции: %w", err)
		}
		txs = append(txs, walletTx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения операций: %w", err)
	}

	return txs, nil
}
