package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidMilestone возвращается для определений достижений с некорректными полями
var ErrInvalidMilestone = errors.New("некорректное определение достижения")

// MilestoneCondition представляет тип условия достижения
type MilestoneCondition string

const (
	// MilestoneConditionTotalReferrals - общее число приглашенных (все уровни)
	MilestoneConditionTotalReferrals MilestoneCondition = "total_referrals"
	// MilestoneConditionTotalEarnings - сумма начисленных комиссий в валюте бонуса
	MilestoneConditionTotalEarnings MilestoneCondition = "total_earnings"
)

// Milestone представляет определение разового бонуса за достижение порога
type Milestone struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	Name           string             `json:"name" db:"name"`
	ConditionType  MilestoneCondition `json:"condition_type" db:"condition_type"`
	ConditionValue decimal.Decimal    `json:"condition_value" db:"condition_value"`
	BonusAmount    decimal.Decimal    `json:"bonus_amount" db:"bonus_amount"`
	Currency       Currency           `json:"currency" db:"currency"`
	IsActive       bool               `json:"is_active" db:"is_active"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

// MilestoneAward представляет факт выплаты бонуса пользователю.
// Уникальность пары (user_id, milestone_id) гарантирует разовость выплаты.
type MilestoneAward struct {
	ID          int64           `json:"id" db:"id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	MilestoneID uuid.UUID       `json:"milestone_id" db:"milestone_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Currency    Currency        `json:"currency" db:"currency"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
