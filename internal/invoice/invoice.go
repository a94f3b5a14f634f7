// Package invoice реализует денежную арифметику выставления счетов.
//
// Все суммы считаются по единому контракту round(количество × ставка × курс, 2)
// и хранятся в валюте расчётов (гривна). Курс валюты расчётов равен 1.0 по
// определению; неизвестный код валюты также даёт курс 1.0, чтобы поток
// выставления счёта никогда не упирался в ошибочный выбор валюты тарифа.
package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FxFunc возвращает курс указанной валюты к валюте расчётов.
// Для неизвестных кодов реализация обязана вернуть 1.0, а не ошибку.
type FxFunc func(currency string) decimal.Decimal

// DefaultCommission — доля комиссии сервиса, применяется к цене товара
// до конвертации в валюту расчётов.
var DefaultCommission = decimal.NewFromFloat(0.20)

var one = decimal.NewFromInt(1)

// Convert считает сумму по общему контракту: round(qty × rate × fx(currency), 2).
func Convert(qty, rate decimal.Decimal, currency string, fx FxFunc) decimal.Decimal {
	return qty.Mul(rate).Mul(fx(currency)).Round(2)
}

// ItemQuote считает итоговую стоимость товара с комиссией и отдельно сумму
// комиссии для показа клиенту. Обе величины выводятся из одного неокруглённого
// промежуточного значения, иначе «итого минус комиссия» может не сойтись
// из-за округления.
func ItemQuote(price, commission decimal.Decimal, currency string, fx FxFunc) (total, fee decimal.Decimal) {
	base := price.Mul(fx(currency))
	total = base.Mul(one.Add(commission)).Round(2)
	fee = base.Mul(commission).Round(2)
	return total, fee
}

// ShippingCost считает счёт за международную доставку по весу.
// Счёт считается один раз в момент ввода тарифа и далее не пересчитывается:
// последующее изменение курса не трогает уже выставленные счета.
func ShippingCost(weight, tariff decimal.Decimal, currency string, fx FxFunc) decimal.Decimal {
	return Convert(weight, tariff, currency, fx)
}

// RateKey возвращает ключ таблицы настроек для курса указанной валюты.
// Для валюты расчётов и неизвестных кодов ключа нет.
func RateKey(currency string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "USD":
		return "usd_rate", true
	case "EUR":
		return "eur_rate", true
	case "GBP":
		return "gbp_rate", true
	default:
		return "", false
	}
}

// StaticFx строит FxFunc поверх фиксированной таблицы курсов, неизвестные
// коды получают курс 1.0.
func StaticFx(rates map[string]decimal.Decimal) FxFunc {
	return func(currency string) decimal.Decimal {
		if r, ok := rates[strings.ToUpper(strings.TrimSpace(currency))]; ok {
			return r
		}
		return one
	}
}
