// Package model содержит доменные сущности бота-посредника по выкупу товаров.
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownStatus возвращается при попытке разобрать строку, не входящую в перечень статусов.
var ErrUnknownStatus = errors.New("unknown order status")

// User представляет клиента или администратора, привязанного к chat-идентификатору.
type User struct {
	ID        int64
	ChatID    int64
	Username  string
	FullName  string
	IsAdmin   bool
	CreatedAt time.Time
}

// OrderStatus описывает статус обработки заказа на выкуп.
type OrderStatus string

// Канонические статусы заказа. Хранятся в верхнем регистре с пробелами;
// в callback-токенах пробелы заменяются подчёркиваниями и восстанавливаются
// функцией NormalizeStatus перед любым сравнением.
const (
	StatusNew                     OrderStatus = "NEW"
	StatusAwaitingPayment         OrderStatus = "AWAITING PAYMENT"
	StatusPaymentReview           OrderStatus = "PAYMENT REVIEW"
	StatusAwaitingTracking        OrderStatus = "AWAITING TRACKING"
	StatusInTransit               OrderStatus = "IN TRANSIT"
	StatusAwaitingWeightPayment   OrderStatus = "AWAITING WEIGHT PAYMENT"
	StatusWeightPaymentReview     OrderStatus = "WEIGHT PAYMENT REVIEW"
	StatusAwaitingShippingDetails OrderStatus = "AWAITING SHIPPING DETAILS"
	StatusReadyToShip             OrderStatus = "READY TO SHIP"
	StatusCompleted               OrderStatus = "COMPLETED"
)

var validStatuses = map[OrderStatus]struct{}{
	StatusNew:                     {},
	StatusAwaitingPayment:         {},
	StatusPaymentReview:           {},
	StatusAwaitingTracking:        {},
	StatusInTransit:               {},
	StatusAwaitingWeightPayment:   {},
	StatusWeightPaymentReview:     {},
	StatusAwaitingShippingDetails: {},
	StatusReadyToShip:             {},
	StatusCompleted:               {},
}

// NormalizeStatus приводит строку статуса к каноническому виду: убирает
// пробелы по краям, переводит в верхний регистр и заменяет подчёркивания
// пробелами. Исторически статусы записывались с разным регистром, поэтому
// нормализация обязательна при каждом чтении.
func NormalizeStatus(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// ParseStatus разбирает строку статуса, допуская любой регистр и
// подчёркивания вместо пробелов.
func ParseStatus(s string) (OrderStatus, error) {
	status := OrderStatus(NormalizeStatus(s))
	if _, ok := validStatuses[status]; ok {
		return status, nil
	}
	return "", ErrUnknownStatus
}

// Token возвращает машинописное представление статуса для callback-данных:
// пробелы заменяются подчёркиваниями.
func (s OrderStatus) Token() string {
	return strings.ReplaceAll(string(s), " ", "_")
}

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// Order описывает заказ клиента на выкуп и доставку товара.
type Order struct {
	ID                  int64
	UserID              int64
	Title               string
	SourceURL           string
	ItemAmount          decimal.Decimal
	ItemCurrency        string
	ShippingWeight      *decimal.Decimal
	ShippingAmount      *decimal.Decimal
	TrackNumber         string
	DeliveryTrackNumber string
	ShippingAddress     string
	StaffNote           string
	ReceiptFileID       string
	WeightReceiptFileID string
	Status              OrderStatus
	CreatedAt           time.Time
}

// CartItem описывает позицию во временной корзине клиента до оформления заказа.
type CartItem struct {
	ID        int64
	ChatID    int64
	Title     string
	Amount    decimal.Decimal
	Details   string
	SourceURL string
}

// Setting представляет запись таблицы настроек: числовое значение для курсов
// и комиссий, строковое — для операционных параметров вроде адреса прокси.
type Setting struct {
	Key      string
	Value    *float64
	ValueStr *string
}

// Descriptor содержит результат разбора страницы товара внешним резолвером.
type Descriptor struct {
	Title    string
	Price    decimal.Decimal
	Currency string
	ImageURL string
}

// Quote содержит расчёт стоимости товара в валюте расчётов.
type Quote struct {
	Title       string
	SourceURL   string
	SourcePrice decimal.Decimal
	Currency    string
	FxRate      decimal.Decimal
	Total       decimal.Decimal
	Commission  decimal.Decimal
	ImageURL    string
}

// StatusCounters содержит счётчики заказов для меню клиента и админа.
// Поле Unpaid объединяет счета за товар и за вес — это правило отображения,
// счётчики пересчитываются из базы при каждом показе.
type StatusCounters struct {
	New       int64
	Unpaid    int64
	Review    int64
	NoTrack   int64
	InTransit int64
	Ready     int64
	Done      int64
}

// RevenueStats содержит итоги по завершённым заказам.
type RevenueStats struct {
	CompletedOrders int64
	Revenue         decimal.Decimal
}
