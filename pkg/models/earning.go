package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Earning представляет одно начисление реферальной комиссии предку
// за инвестицию потомка
type Earning struct {
	ID             int64           `json:"id" db:"id"`
	AncestorID     int64           `json:"ancestor_id" db:"ancestor_id"`
	DescendantID   int64           `json:"descendant_id" db:"descendant_id"`
	Level          int             `json:"level" db:"level"`
	InvestmentRef  uuid.UUID       `json:"investment_ref" db:"investment_ref"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       Currency        `json:"currency" db:"currency"`
	PercentageUsed decimal.Decimal `json:"percentage_used" db:"percentage_used"`
	Status         EarningStatus   `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CreditedAt     *time.Time      `json:"credited_at,omitempty" db:"credited_at"`
}

// EarningStatus представляет статус начисления
type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusCredited  EarningStatus = "credited"
	EarningStatusFailed    EarningStatus = "failed"
	EarningStatusCancelled EarningStatus = "cancelled"
)

// IsValid проверяет валидность статуса начисления
func (s EarningStatus) IsValid() bool {
	switch s {
	case EarningStatusPending, EarningStatusCredited, EarningStatusFailed, EarningStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal проверяет, является ли статус терминальным. Терминальное
// начисление уже не меняется: credited зачислено на кошелек, cancelled
// списано администратором. Статусы pending и failed администратор
// может отменить.
func (s EarningStatus) IsTerminal() bool {
	return s == EarningStatusCredited || s == EarningStatusCancelled
}
