package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet представляет баланс пользователя в одной валюте
type Wallet struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Currency  Currency        `json:"currency" db:"currency"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// WalletTransactionType представляет тип операции по кошельку
type WalletTransactionType string

const (
	WalletTxReferralBonus  WalletTransactionType = "referral_bonus"
	WalletTxMilestoneBonus WalletTransactionType = "milestone_bonus"
)

// WalletTransaction представляет запись журнала операций по кошельку.
// Создается в той же транзакции, что и изменение баланса.
type WalletTransaction struct {
	ID            int64                 `json:"id" db:"id"`
	UserID        int64                 `json:"user_id" db:"user_id"`
	Type          WalletTransactionType `json:"type" db:"type"`
	Currency      Currency              `json:"currency" db:"currency"`
	Amount        decimal.Decimal       `json:"amount" db:"amount"`
	BalanceBefore decimal.Decimal       `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after" db:"balance_after"`
	ReferenceID   string                `json:"reference_id" db:"reference_id"`
	Description   string                `json:"description" db:"description"`
	CreatedAt     time.Time             `json:"created_at" db:"created_at"`
}
