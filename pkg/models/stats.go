package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserReferralStats представляет денормализованную статистику рефералов
// пользователя. Обновляется только полным пересчетом из ребер и начислений,
// никогда инкрементально.
type UserReferralStats struct {
	UserID            int64           `json:"user_id" db:"user_id"`
	ReferralCode      string          `json:"referral_code" db:"referral_code"`
	ReferredBy        *int64          `json:"referred_by,omitempty" db:"referred_by"`
	TotalReferrals    int             `json:"total_referrals" db:"total_referrals"`
	TotalEarningsINR  decimal.Decimal `json:"total_earnings_inr" db:"total_earnings_inr"`
	TotalEarningsUSDT decimal.Decimal `json:"total_earnings_usdt" db:"total_earnings_usdt"`
	LastEarningAt     *time.Time      `json:"last_earning_at,omitempty" db:"last_earning_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// EarningsFor возвращает суммарные начисления пользователя в указанной валюте
func (s *UserReferralStats) EarningsFor(currency Currency) decimal.Decimal {
	switch currency {
	case CurrencyINR:
		return s.TotalEarningsINR
	case CurrencyUSDT:
		return s.TotalEarningsUSDT
	default:
		return decimal.Zero
	}
}
