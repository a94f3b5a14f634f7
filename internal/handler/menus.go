package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/iva2004/alina-bot/internal/model"
	"github.com/iva2004/alina-bot/internal/notify"
	"github.com/iva2004/alina-bot/internal/orderflow"
)

func (h *Handler) sendMainMenu(ctx context.Context, u *model.User) error {
	staff, err := h.service.IsStaff(ctx, u.ChatID)
	if err != nil {
		return err
	}
	if staff {
		return h.sendStaffMenu(ctx, u)
	}

	return h.notifier.Send(ctx, u.ChatID, notify.Message{
		Text: "Привет! Пришлите ссылку на товар из зарубежного магазина — посчитаю стоимость выкупа с доставкой.",
		Buttons: []notify.Button{
			{Text: "🛒 Корзина", Data: "cart_view"},
			{Text: "📦 Мои заказы", Data: "my_orders"},
		},
	})
}

func (h *Handler) sendStaffMenu(ctx context.Context, u *model.User) error {
	staff, err := h.service.IsStaff(ctx, u.ChatID)
	if err != nil {
		return err
	}
	if !staff {
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Эта команда доступна только администраторам."})
	}

	return h.notifier.Send(ctx, u.ChatID, notify.Message{
		Text: "Панель администратора. Пришлите трек-номер, чтобы найти заказ.",
		Buttons: []notify.Button{
			{Text: "📋 Заказы", Data: "adm_counters"},
			{Text: "📈 Статистика", Data: "adm_stats"},
			{Text: "💱 Курсы", Data: "adm_rates"},
			{Text: "👥 Администраторы", Data: "adm_admins"},
		},
	})
}

func (h *Handler) sendCart(ctx context.Context, u *model.User) error {
	items, err := h.service.CartItems(ctx, u.ChatID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Корзина пуста. Пришлите ссылку на товар, чтобы добавить его."})
	}

	var b strings.Builder
	b.WriteString("🛒 <b>Ваша корзина</b>\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s — %s ₴\n   %s\n", i+1, it.Title, it.Amount.StringFixed(2), it.Details)
	}
	fmt.Fprintf(&b, "\nИтого: <b>%s ₴</b>", h.service.CartTotal(items).StringFixed(2))

	return h.notifier.Send(ctx, u.ChatID, notify.Message{
		Text: b.String(),
		Buttons: []notify.Button{
			{Text: "✅ Оформить", Data: "cart_checkout"},
			{Text: "🗑 Очистить", Data: "cart_clear"},
		},
	})
}

// counterRows описывает строки меню счётчиков: подпись и статус для выборки.
var counterRows = []struct {
	label  string
	status model.OrderStatus
}{
	{"🆕 Новые", model.StatusNew},
	{"💸 Неоплаченные", model.StatusAwaitingPayment},
	{"🔎 На проверке", model.StatusPaymentReview},
	{"✈️ Без трека", model.StatusAwaitingTracking},
	{"🚚 В пути", model.StatusInTransit},
	{"📦 К отправке", model.StatusReadyToShip},
	{"✅ Завершённые", model.StatusCompleted},
}

func countersButtons(c *model.StatusCounters, prefix string) []notify.Button {
	values := []int64{c.New, c.Unpaid, c.Review, c.NoTrack, c.InTransit, c.Ready, c.Done}

	buttons := make([]notify.Button, 0, len(counterRows))
	for i, row := range counterRows {
		buttons = append(buttons, notify.Button{
			Text: fmt.Sprintf("%s (%d)", row.label, values[i]),
			Data: prefix + row.status.Token(),
		})
	}
	return buttons
}

func (h *Handler) sendCustomerCounters(ctx context.Context, u *model.User) error {
	c, err := h.service.Counters(ctx, &u.ID)
	if err != nil {
		return err
	}
	return h.notifier.Send(ctx, u.ChatID, notify.Message{
		Text:    "📦 Ваши заказы по статусам:",
		Buttons: countersButtons(c, "my_status_"),
	})
}

func (h *Handler) sendStaffCounters(ctx context.Context, u *model.User) error {
	c, err := h.service.Counters(ctx, nil)
	if err != nil {
		return err
	}
	return h.notifier.Send(ctx, u.ChatID, notify.Message{
		Text:    "📋 Заказы по статусам:",
		Buttons: countersButtons(c, "adm_status_"),
	})
}

func (h *Handler) sendOrderList(ctx context.Context, chatID int64, status model.OrderStatus, userID *int64, staff bool) error {
	orders, err := h.service.OrdersByStatus(ctx, status, userID, 20)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return h.notifier.Send(ctx, chatID, notify.Message{Text: "В этом статусе заказов нет."})
	}

	msg := notify.Message{Text: fmt.Sprintf("Заказы в статусе «%s»:", status)}
	for _, o := range orders {
		label := fmt.Sprintf("№%d %s", o.ID, o.Title)
		if staff {
			msg.Buttons = append(msg.Buttons, notify.Button{Text: label, Data: fmt.Sprintf("adm_order_%d", o.ID)})
		} else {
			step, total := orderflow.Progress(o.Status)
			msg.Text += fmt.Sprintf("\n• %s — шаг %d из %d", label, step, total)
			if item, weight := orderflow.PendingAmounts(o); item {
				msg.Text += fmt.Sprintf(" · не оплачено %s ₴", o.ItemAmount.StringFixed(2))
			} else if weight && o.ShippingAmount != nil {
				msg.Text += fmt.Sprintf(" · не оплачена доставка %s ₴", o.ShippingAmount.StringFixed(2))
			}
		}
	}

	return h.notifier.Send(ctx, chatID, msg)
}

// sendStaffOrderCard показывает администратору карточку заказа с действиями,
// допустимыми в текущем статусе.
func (h *Handler) sendStaffOrderCard(ctx context.Context, chatID int64, o *model.Order) error {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 <b>Заказ №%d</b>\n%s\nСтатус: %s\nСчёт за товар: %s ₴", o.ID, o.Title, o.Status, o.ItemAmount.StringFixed(2))
	if o.ShippingAmount != nil {
		fmt.Fprintf(&b, "\nСчёт за доставку: %s ₴", o.ShippingAmount.StringFixed(2))
	}
	if o.TrackNumber != "" {
		fmt.Fprintf(&b, "\nТрек: %s", o.TrackNumber)
	}
	if o.DeliveryTrackNumber != "" {
		fmt.Fprintf(&b, "\nТТН: %s", o.DeliveryTrackNumber)
	}
	if o.ShippingAddress != "" {
		fmt.Fprintf(&b, "\nАдрес: %s", o.ShippingAddress)
	}
	if o.StaffNote != "" {
		fmt.Fprintf(&b, "\nПримечание: %s", o.StaffNote)
	}

	msg := notify.Message{Text: b.String(), Buttons: staffOrderActions(o)}
	return h.notifier.Send(ctx, chatID, msg)
}

func staffOrderActions(o *model.Order) []notify.Button {
	id := o.ID
	var buttons []notify.Button

	switch o.Status {
	case model.StatusNew:
		buttons = append(buttons,
			notify.Button{Text: "💰 Выставить счёт", Data: fmt.Sprintf("adm_invoice_%d", id)},
			notify.Button{Text: "❌ Нет в наличии", Data: fmt.Sprintf("adm_missing_%d", id)},
		)
	case model.StatusPaymentReview:
		buttons = append(buttons,
			notify.Button{Text: "✅ Подтвердить оплату", Data: fmt.Sprintf("adm_pay_ok_%d", id)},
			notify.Button{Text: "❌ Ошибка в чеке", Data: fmt.Sprintf("adm_pay_bad_%d", id)},
		)
	case model.StatusAwaitingTracking:
		buttons = append(buttons,
			notify.Button{Text: "✈️ Ввести трек", Data: fmt.Sprintf("adm_track_%d", id)},
		)
	case model.StatusInTransit:
		buttons = append(buttons,
			notify.Button{Text: "⚖️ Прибыл, взвесить", Data: fmt.Sprintf("adm_weight_%d", id)},
		)
	case model.StatusWeightPaymentReview:
		buttons = append(buttons,
			notify.Button{Text: "✅ Подтвердить ВЕС", Data: fmt.Sprintf("adm_pay_weight_ok_%d", id)},
			notify.Button{Text: "❌ Ошибка", Data: fmt.Sprintf("adm_pay_weight_bad_%d", id)},
		)
	case model.StatusReadyToShip:
		buttons = append(buttons,
			notify.Button{Text: "🚀 Ввести номер ТТН", Data: fmt.Sprintf("adm_set_ttn_%d", id)},
		)
	}

	if !o.Status.IsTerminal() {
		buttons = append(buttons,
			notify.Button{Text: "💬 Написать клиенту", Data: fmt.Sprintf("adm_ask_%d", id)},
			notify.Button{Text: "🚫 Отменить заказ", Data: fmt.Sprintf("adm_cancel_%d", id)},
		)
	}

	return buttons
}

func (h *Handler) sendRates(ctx context.Context, u *model.User) error {
	rates, err := h.service.Rates(ctx)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(
		"💱 Текущие настройки:\nUSD: %v ₴\nEUR: %v ₴\nGBP: %v ₴\nКомиссия: %v",
		rates["usd_rate"], rates["eur_rate"], rates["gbp_rate"], rates["commission_rate"],
	)
	return h.notifier.Send(ctx, u.ChatID, notify.Message{
		Text: text,
		Buttons: []notify.Button{
			{Text: "Изменить USD", Data: "rate_set_usd_rate"},
			{Text: "Изменить EUR", Data: "rate_set_eur_rate"},
			{Text: "Изменить GBP", Data: "rate_set_gbp_rate"},
			{Text: "Изменить комиссию", Data: "rate_set_commission_rate"},
		},
	})
}

func (h *Handler) sendAdminList(ctx context.Context, u *model.User) error {
	ids, err := h.service.AdminList(ctx)
	if err != nil {
		return err
	}

	msg := notify.Message{
		Text:    fmt.Sprintf("👥 Администраторов: %d", len(ids)),
		Buttons: []notify.Button{{Text: "➕ Добавить", Data: "adm_add_admin"}},
	}
	for _, id := range ids {
		msg.Buttons = append(msg.Buttons, notify.Button{
			Text: fmt.Sprintf("🗑 Удалить %d", id),
			Data: fmt.Sprintf("adm_del_admin_%d", id),
		})
	}
	return h.notifier.Send(ctx, u.ChatID, msg)
}
