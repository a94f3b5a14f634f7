package orderflow

import (
	"github.com/shopspring/decimal"

	"github.com/iva2004/alina-bot/internal/model"
)

// Recipient — адресат уведомления о переходе.
type Recipient int

const (
	// RecipientCustomer — владелец заказа.
	RecipientCustomer Recipient = iota
	// RecipientStaff — все администраторы.
	RecipientStaff
)

// Action описывает кнопку инлайн-клавиатуры, прикладываемую к уведомлению.
type Action struct {
	Label string
	Data  string
}

// Notice — уведомление, которое сервис должен отправить после фиксации
// перехода в базе. Ошибка доставки логируется и не откатывает переход.
type Notice struct {
	To      Recipient
	Text    string
	Actions []Action
}

// Changes перечисляет поля заказа, которые переход выставляет.
// nil-поля не трогаются.
type Changes struct {
	ItemAmount          *decimal.Decimal
	ShippingWeight      *decimal.Decimal
	ShippingAmount      *decimal.Decimal
	TrackNumber         *string
	DeliveryTrackNumber *string
	ShippingAddress     *string
	StaffNote           *string
	ReceiptFileID       *string
	WeightReceiptFileID *string
}

// Outcome — результат успешного решения машины состояний.
type Outcome struct {
	Prev    model.OrderStatus
	Next    model.OrderStatus
	Changes Changes
	Notices []Notice
}
