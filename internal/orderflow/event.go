// Package orderflow реализует машину состояний заказа: чистую логику
// переходов без ввода-вывода. На вход подаётся снимок заказа, событие и
// таблица курсов, на выходе — следующий статус, изменения полей и
// уведомления. Запись в базу и отправка сообщений остаются за сервисом.
package orderflow

import (
	"github.com/shopspring/decimal"
)

// Event — событие извне, инициирующее переход заказа.
// Ровно одно событие порождает ровно один переход; события создаются
// транспортным адаптером из callback-токенов и сообщений диалогов.
type Event interface {
	eventName() string
}

// IssueInvoice — админ выставляет счёт за товар (заказ в статусе NEW).
type IssueInvoice struct {
	Amount decimal.Decimal
}

// MarkUnavailable — админ закрывает заказ: товара нет в наличии.
type MarkUnavailable struct {
	Reason string
}

// SubmitReceipt — клиент прислал чек об оплате товара.
type SubmitReceipt struct {
	FileID string
}

// ApprovePayment — админ подтвердил чек за товар.
type ApprovePayment struct{}

// RejectPayment — админ отклонил чек за товар.
type RejectPayment struct{}

// SetTrackNumber — админ ввёл международный трек-номер выкупа.
type SetTrackNumber struct {
	Number string
}

// IssueWeightInvoice — завершение диалога взвешивания: вес, тариф и валюта
// тарифа введены, счёт за доставку рассчитывается и выставляется.
type IssueWeightInvoice struct {
	Weight   decimal.Decimal
	Tariff   decimal.Decimal
	Currency string
}

// SubmitWeightReceipt — клиент прислал чек об оплате доставки по весу.
type SubmitWeightReceipt struct {
	FileID string
}

// ApproveWeightPayment — админ подтвердил чек за вес.
type ApproveWeightPayment struct{}

// RejectWeightPayment — админ отклонил чек за вес.
type RejectWeightPayment struct{}

// SubmitAddress — клиент прислал реквизиты для отправки по стране.
type SubmitAddress struct {
	Address string
}

// SetDeliveryTrack — админ ввёл номер ТТН последней мили, заказ завершён.
type SetDeliveryTrack struct {
	Number string
}

// Cancel — админ отменяет заказ с указанием причины. Допустим из любого
// нетерминального статуса; заказ не удаляется, а завершается с пометкой.
type Cancel struct {
	Reason string
}

func (IssueInvoice) eventName() string         { return "issue invoice" }
func (MarkUnavailable) eventName() string      { return "mark unavailable" }
func (SubmitReceipt) eventName() string        { return "submit receipt" }
func (ApprovePayment) eventName() string       { return "approve payment" }
func (RejectPayment) eventName() string        { return "reject payment" }
func (SetTrackNumber) eventName() string       { return "set track number" }
func (IssueWeightInvoice) eventName() string   { return "issue weight invoice" }
func (SubmitWeightReceipt) eventName() string  { return "submit weight receipt" }
func (ApproveWeightPayment) eventName() string { return "approve weight payment" }
func (RejectWeightPayment) eventName() string  { return "reject weight payment" }
func (SubmitAddress) eventName() string        { return "submit address" }
func (SetDeliveryTrack) eventName() string     { return "set delivery track" }
func (Cancel) eventName() string               { return "cancel" }
