package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfig возвращается для конфигураций с некорректной таблицей процентов
var ErrInvalidConfig = errors.New("некорректная конфигурация реферальной программы")

// ReferralEdge представляет одно ребро реферального графа:
// ancestor пригласил descendant напрямую (level = 1) или через цепочку (level > 1).
// Ребро создается один раз при построении цепочки и никогда не изменяется.
type ReferralEdge struct {
	ID           int64     `json:"id" db:"id"`
	AncestorID   int64     `json:"ancestor_id" db:"ancestor_id"`
	DescendantID int64     `json:"descendant_id" db:"descendant_id"`
	Level        int       `json:"level" db:"level"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IsDirect проверяет, является ли ребро прямым приглашением
func (e *ReferralEdge) IsDirect() bool {
	return e.Level == 1
}

// ReferralConfig представляет конфигурацию реферальной программы.
// В любой момент времени активна не более одной конфигурации.
type ReferralConfig struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	MaxLevels   int               `json:"max_levels" db:"max_levels"`
	Percentages []decimal.Decimal `json:"percentages" db:"percentages"`
	IsActive    bool              `json:"is_active" db:"is_active"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// PercentageForLevel возвращает процент комиссии для уровня цепочки.
// Для уровней вне таблицы процентов возвращается ноль.
func (c *ReferralConfig) PercentageForLevel(level int) decimal.Decimal {
	if level < 1 || level > len(c.Percentages) {
		return decimal.Zero
	}
	return c.Percentages[level-1]
}

// Investment представляет инвестиционное событие, по которому
// начисляются реферальные комиссии
type Investment struct {
	ID       uuid.UUID       `json:"id"`
	UserID   int64           `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}
