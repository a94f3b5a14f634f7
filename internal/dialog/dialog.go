// Package dialog хранит маркеры многошаговых диалогов: «чего мы ждём от
// этого актора следующим сообщением». Маркер — размеченное объединение по
// одному варианту на каждый многошаговый поток; поля маркера видны только
// тому потоку, который его записал. Брошенный диалог просто не возобновится
// и не оставит частичных изменений заказа.
package dialog

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iva2004/alina-bot/internal/model"
)

// Marker — маркер ожидания следующего шага диалога для конкретного актора.
type Marker interface {
	markerName() string
}

// AwaitInvoiceAmount — админ вводит сумму счёта за товар.
type AwaitInvoiceAmount struct {
	OrderID int64
}

// AwaitWeight — шаг 1 взвешивания: админ вводит вес посылки в кг.
type AwaitWeight struct {
	OrderID int64
}

// AwaitTariffCurrency — шаг 2 взвешивания: админ выбирает валюту тарифа.
// Вес держится в маркере и не пишется в заказ до завершения диалога.
type AwaitTariffCurrency struct {
	OrderID int64
	Weight  decimal.Decimal
}

// AwaitTariffRate — шаг 3 взвешивания: админ вводит тариф за килограмм.
type AwaitTariffRate struct {
	OrderID  int64
	Weight   decimal.Decimal
	Currency string
}

// AwaitTrackNumber — админ вводит международный трек-номер выкупа.
type AwaitTrackNumber struct {
	OrderID int64
}

// AwaitDeliveryTrack — админ вводит номер ТТН последней мили.
type AwaitDeliveryTrack struct {
	OrderID int64
}

// AwaitCancelReason — админ вводит причину отмены заказа.
type AwaitCancelReason struct {
	OrderID int64
}

// AwaitAskText — админ пишет клиенту вопрос по заказу.
type AwaitAskText struct {
	OrderID int64
}

// AwaitRateValue — админ вводит новое значение курса для ключа настроек.
type AwaitRateValue struct {
	Key string
}

// AwaitAdminChatID — супер-админ присылает chat-идентификатор нового админа.
type AwaitAdminChatID struct{}

// AwaitReceipt — клиент присылает фото чека об оплате товара.
type AwaitReceipt struct {
	OrderID int64
}

// AwaitWeightReceipt — клиент присылает фото чека об оплате доставки.
type AwaitWeightReceipt struct {
	OrderID int64
}

// AwaitShippingDetails — клиент присылает реквизиты для отправки.
type AwaitShippingDetails struct {
	OrderID int64
}

// AwaitCartDetails — клиент вводит параметры товара (размер и т.п.) перед
// добавлением рассчитанной позиции в корзину.
type AwaitCartDetails struct {
	Quote model.Quote
}

// QuoteOffered — клиенту показано предложение по ссылке, ждём нажатия кнопки
// «в корзину». Новая ссылка вытесняет предыдущее предложение.
type QuoteOffered struct {
	Quote model.Quote
}

func (AwaitInvoiceAmount) markerName() string   { return "invoice amount" }
func (AwaitWeight) markerName() string          { return "weight" }
func (AwaitTariffCurrency) markerName() string  { return "tariff currency" }
func (AwaitTariffRate) markerName() string      { return "tariff rate" }
func (AwaitTrackNumber) markerName() string     { return "track number" }
func (AwaitDeliveryTrack) markerName() string   { return "delivery track" }
func (AwaitCancelReason) markerName() string    { return "cancel reason" }
func (AwaitAskText) markerName() string         { return "ask text" }
func (AwaitRateValue) markerName() string       { return "rate value" }
func (AwaitAdminChatID) markerName() string     { return "admin chat id" }
func (AwaitReceipt) markerName() string         { return "receipt" }
func (AwaitWeightReceipt) markerName() string   { return "weight receipt" }
func (AwaitShippingDetails) markerName() string { return "shipping details" }
func (AwaitCartDetails) markerName() string     { return "cart details" }
func (QuoteOffered) markerName() string         { return "quote offered" }

// Store описывает контракт памяти диалогов, ключ — идентификатор актора.
type Store interface {
	Get(actor int64) (Marker, bool)
	Set(actor int64, m Marker)
	Clear(actor int64)
}

// MemoryStore — потокобезопасная память диалогов в процессе.
type MemoryStore struct {
	mu      sync.RWMutex
	markers map[int64]Marker
}

// NewMemoryStore создаёт пустую память диалогов.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{markers: make(map[int64]Marker)}
}

// Get возвращает текущий маркер актора.
func (s *MemoryStore) Get(actor int64) (Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markers[actor]
	return m, ok
}

// Set записывает маркер актора, затирая предыдущий.
func (s *MemoryStore) Set(actor int64, m Marker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[actor] = m
}

// Clear сбрасывает маркер актора.
func (s *MemoryStore) Clear(actor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, actor)
}
