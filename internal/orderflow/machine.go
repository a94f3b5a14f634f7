package orderflow

import (
	"errors"
	"fmt"

	"github.com/iva2004/alina-bot/internal/invoice"
	"github.com/iva2004/alina-bot/internal/model"
)

// ErrInvalidTransition возвращается, когда событие недопустимо в текущем
// статусе заказа. Заказ при этом не меняется, уведомления не отправляются.
var ErrInvalidTransition = errors.New("transition not allowed")

// ErrValidation возвращается при провале guard-проверки входных данных
// (неположительная сумма, пустой трек и т.п.); актор получает повторный запрос.
var ErrValidation = errors.New("invalid input")

// Decide вычисляет переход заказа по событию. Функция чистая: читает снимок
// заказа и таблицу курсов, ничего не пишет. Статус снимка нормализуется и
// сверяется с перечнем перед принятием решения, чтобы опечатка в базе не
// породила «новый» статус.
func Decide(order model.Order, ev Event, fx invoice.FxFunc) (Outcome, error) {
	status, err := model.ParseStatus(string(order.Status))
	if err != nil {
		return Outcome{}, fmt.Errorf("order %d status %q: %w", order.ID, order.Status, err)
	}

	switch e := ev.(type) {
	case IssueInvoice:
		if status != model.StatusNew {
			return Outcome{}, rejected(e, status)
		}
		if !e.Amount.IsPositive() {
			return Outcome{}, fmt.Errorf("%w: invoice amount must be a positive number", ErrValidation)
		}
		amount := e.Amount.Round(2)
		return Outcome{
			Prev:    status,
			Next:    model.StatusAwaitingPayment,
			Changes: Changes{ItemAmount: &amount},
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"💳 <b>Выставлен счет по заказу №%d</b>\n📦 Товар: %s\n💰 К оплате: <b>%s грн</b>\n\n<i>Оплатите и пришлите фото чека.</i>",
					order.ID, order.Title, amount.StringFixed(2)),
				Actions: []Action{{Label: "📸 Отправить чек", Data: fmt.Sprintf("user_pay_check_%d", order.ID)}},
			}},
		}, nil

	case MarkUnavailable:
		if status != model.StatusNew {
			return Outcome{}, rejected(e, status)
		}
		reason := e.Reason
		if reason == "" {
			reason = "Товара нет в наличии"
		}
		note := "ОТМЕНА: " + reason
		return Outcome{
			Prev:    status,
			Next:    model.StatusCompleted,
			Changes: Changes{StaffNote: &note},
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"❌ <b>Заказ №%d отменен</b>\nК сожалению, товара нет в наличии в магазине. Заказ закрыт.",
					order.ID),
			}},
		}, nil

	case SubmitReceipt:
		if status != model.StatusAwaitingPayment {
			return Outcome{}, rejected(e, status)
		}
		fileID := e.FileID
		return Outcome{
			Prev:    status,
			Next:    model.StatusPaymentReview,
			Changes: Changes{ReceiptFileID: &fileID},
			Notices: []Notice{{
				To:   RecipientStaff,
				Text: fmt.Sprintf("💰 <b>ПОЛУЧЕН ЧЕК К ЗАКАЗУ №%d</b>", order.ID),
				Actions: []Action{
					{Label: "✅ Подтвердить оплату", Data: fmt.Sprintf("adm_pay_ok_%d", order.ID)},
					{Label: "❌ Ошибка в чеке", Data: fmt.Sprintf("adm_pay_bad_%d", order.ID)},
				},
			}},
		}, nil

	case ApprovePayment:
		if status != model.StatusPaymentReview {
			return Outcome{}, rejected(e, status)
		}
		return Outcome{
			Prev: status,
			Next: model.StatusAwaitingTracking,
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"✅ <b>Ваша оплата по заказу №%d принята!</b>\nТовар выкуплен. Ожидайте доставку на наш склад.",
					order.ID),
			}},
		}, nil

	case RejectPayment:
		if status != model.StatusPaymentReview {
			return Outcome{}, rejected(e, status)
		}
		return Outcome{
			Prev: status,
			Next: model.StatusAwaitingPayment,
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"⚠️ <b>Проблема с оплатой заказа №%d</b>\nВаш чек не прошел проверку. Пришлите корректный чек.",
					order.ID),
				Actions: []Action{{Label: "📸 Отправить чек", Data: fmt.Sprintf("user_pay_check_%d", order.ID)}},
			}},
		}, nil

	case SetTrackNumber:
		if status != model.StatusAwaitingTracking {
			return Outcome{}, rejected(e, status)
		}
		if e.Number == "" {
			return Outcome{}, fmt.Errorf("%w: track number must not be empty", ErrValidation)
		}
		track := e.Number
		return Outcome{
			Prev:    status,
			Next:    model.StatusInTransit,
			Changes: Changes{TrackNumber: &track},
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"🚚 <b>Ваш заказ №%d отправлен магазином!</b>\nТрек-номер: <code>%s</code>",
					order.ID, track),
			}},
		}, nil

	case IssueWeightInvoice:
		if status != model.StatusInTransit {
			return Outcome{}, rejected(e, status)
		}
		if !e.Weight.IsPositive() {
			return Outcome{}, fmt.Errorf("%w: weight must be a positive number", ErrValidation)
		}
		if !e.Tariff.IsPositive() {
			return Outcome{}, fmt.Errorf("%w: tariff rate must be a positive number", ErrValidation)
		}
		amount := invoice.ShippingCost(e.Weight, e.Tariff, e.Currency, fx)
		weight := e.Weight
		return Outcome{
			Prev:    status,
			Next:    model.StatusAwaitingWeightPayment,
			Changes: Changes{ShippingWeight: &weight, ShippingAmount: &amount},
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"⚖️ <b>Выставлен счет за доставку (ВЕС) №%d</b>\n📦 Вес: <b>%s кг</b> | Тариф: <b>%s %s</b>\n💰 Итого к оплате: <b>%s грн</b>",
					order.ID, e.Weight.String(), e.Tariff.String(), e.Currency, amount.StringFixed(2)),
				Actions: []Action{{Label: "📸 Отправить чек за ВЕС", Data: fmt.Sprintf("user_pay_weight_%d", order.ID)}},
			}},
		}, nil

	case SubmitWeightReceipt:
		if status != model.StatusAwaitingWeightPayment {
			return Outcome{}, rejected(e, status)
		}
		fileID := e.FileID
		return Outcome{
			Prev:    status,
			Next:    model.StatusWeightPaymentReview,
			Changes: Changes{WeightReceiptFileID: &fileID},
			Notices: []Notice{{
				To:   RecipientStaff,
				Text: fmt.Sprintf("⚖️ <b>ОПЛАТА ЗА ВЕС!</b> Заказ №%d", order.ID),
				Actions: []Action{
					{Label: "✅ Подтвердить ВЕС", Data: fmt.Sprintf("adm_pay_weight_ok_%d", order.ID)},
					{Label: "❌ Ошибка", Data: fmt.Sprintf("adm_pay_weight_bad_%d", order.ID)},
				},
			}},
		}, nil

	case ApproveWeightPayment:
		if status != model.StatusWeightPaymentReview {
			return Outcome{}, rejected(e, status)
		}
		return Outcome{
			Prev: status,
			Next: model.StatusAwaitingShippingDetails,
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"✅ <b>Оплата доставки подтверждена!</b>\n📦 Заказ №%d готов к отправке по стране.\nПришлите данные для Новой Почты одним сообщением:\n1. ФИО получателя\n2. Номер телефона\n3. Город\n4. Номер отделения",
					order.ID),
			}},
		}, nil

	case RejectWeightPayment:
		if status != model.StatusWeightPaymentReview {
			return Outcome{}, rejected(e, status)
		}
		return Outcome{
			Prev: status,
			Next: model.StatusAwaitingWeightPayment,
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"⚠️ <b>Проблема с оплатой доставки по заказу №%d</b>\nЧек не прошел проверку. Пришлите корректный чек.",
					order.ID),
				Actions: []Action{{Label: "📸 Отправить чек за ВЕС", Data: fmt.Sprintf("user_pay_weight_%d", order.ID)}},
			}},
		}, nil

	case SubmitAddress:
		if status != model.StatusAwaitingShippingDetails {
			return Outcome{}, rejected(e, status)
		}
		if e.Address == "" {
			return Outcome{}, fmt.Errorf("%w: shipping details must not be empty", ErrValidation)
		}
		addr := e.Address
		return Outcome{
			Prev:    status,
			Next:    model.StatusReadyToShip,
			Changes: Changes{ShippingAddress: &addr},
			Notices: []Notice{{
				To: RecipientStaff,
				Text: fmt.Sprintf(
					"📩 <b>ПОЛУЧЕНЫ РЕКВИЗИТЫ НП (Заказ №%d)</b>\n📝 Данные для отправки:\n<code>%s</code>",
					order.ID, addr),
				Actions: []Action{{Label: "🚀 Ввести номер ТТН", Data: fmt.Sprintf("adm_set_ttn_%d", order.ID)}},
			}},
		}, nil

	case SetDeliveryTrack:
		if status != model.StatusReadyToShip {
			return Outcome{}, rejected(e, status)
		}
		if e.Number == "" {
			return Outcome{}, fmt.Errorf("%w: delivery track number must not be empty", ErrValidation)
		}
		ttn := e.Number
		return Outcome{
			Prev:    status,
			Next:    model.StatusCompleted,
			Changes: Changes{DeliveryTrackNumber: &ttn},
			Notices: []Notice{{
				To: RecipientCustomer,
				Text: fmt.Sprintf(
					"🚀 <b>Ваша посылка отправлена!</b>\n📦 Заказ №%d\n🧾 ТТН: <code>%s</code>\n<i>Благодарим за покупку!</i>",
					order.ID, ttn),
			}},
		}, nil

	case Cancel:
		if status.IsTerminal() {
			return Outcome{}, rejected(e, status)
		}
		if e.Reason == "" {
			return Outcome{}, fmt.Errorf("%w: cancellation reason must not be empty", ErrValidation)
		}
		note := "ОТМЕНА: " + e.Reason
		return Outcome{
			Prev:    status,
			Next:    model.StatusCompleted,
			Changes: Changes{StaffNote: &note},
			Notices: []Notice{{
				To:   RecipientCustomer,
				Text: fmt.Sprintf("❌ <b>Ваш заказ №%d отменен.</b>\nПричина: %s", order.ID, e.Reason),
			}},
		}, nil

	default:
		return Outcome{}, fmt.Errorf("%w: unsupported event %T", ErrInvalidTransition, ev)
	}
}

func rejected(ev Event, status model.OrderStatus) error {
	return fmt.Errorf("%w: %s in status %q", ErrInvalidTransition, ev.eventName(), status)
}

// PendingAmounts проверяет инвариант счетов: в статусах ожидания оплаты
// ровно один счёт не закрыт — либо за товар, либо за вес, но не оба сразу.
func PendingAmounts(order model.Order) (item, weight bool) {
	switch model.OrderStatus(model.NormalizeStatus(string(order.Status))) {
	case model.StatusAwaitingPayment, model.StatusPaymentReview:
		return true, false
	case model.StatusAwaitingWeightPayment, model.StatusWeightPaymentReview:
		return false, true
	default:
		return false, false
	}
}

// statusOrder задаёт последовательность основного пути для отображения
// прогресса заказа клиенту.
var statusOrder = []model.OrderStatus{
	model.StatusNew,
	model.StatusAwaitingPayment,
	model.StatusPaymentReview,
	model.StatusAwaitingTracking,
	model.StatusInTransit,
	model.StatusAwaitingWeightPayment,
	model.StatusWeightPaymentReview,
	model.StatusAwaitingShippingDetails,
	model.StatusReadyToShip,
	model.StatusCompleted,
}

// Progress возвращает номер шага статуса на основном пути (с единицы) и
// общее число шагов. Для неизвестного статуса возвращает 0.
func Progress(status model.OrderStatus) (step, total int) {
	total = len(statusOrder)
	norm := model.OrderStatus(model.NormalizeStatus(string(status)))
	for i, s := range statusOrder {
		if s == norm {
			return i + 1, total
		}
	}
	return 0, total
}
