package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownCurrency возвращается для валют вне поддерживаемого набора
	ErrUnknownCurrency = errors.New("неизвестная валюта")
	// ErrInvalidInvestment возвращается для инвестиций с некорректными полями
	ErrInvalidInvestment = errors.New("некорректная инвестиция")
)

// Currency представляет валюту инвестиций и бонусов
type Currency string

const (
	CurrencyINR  Currency = "INR"
	CurrencyUSDT Currency = "USDT"
)

// IsValid проверяет валидность валюты
func (c Currency) IsValid() bool {
	switch c {
	case CurrencyINR, CurrencyUSDT:
		return true
	default:
		return false
	}
}

// Precision возвращает количество знаков после запятой для валюты
// (2 для фиатных валют, 6 для криптовалют)
func (c Currency) Precision() int32 {
	switch c {
	case CurrencyUSDT:
		return 6
	default:
		return 2
	}
}

// Round округляет сумму до точности валюты
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Precision())
}
