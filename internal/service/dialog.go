package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iva2004/alina-bot/internal/dialog"
	"github.com/iva2004/alina-bot/internal/model"
	"github.com/iva2004/alina-bot/internal/notify"
	"github.com/iva2004/alina-bot/internal/orderflow"
)

// BeginDialog запоминает, какой ввод ожидается от актора следующим сообщением.
// Новый диалог вытесняет предыдущий.
func (s *Service) BeginDialog(actor int64, m dialog.Marker) {
	s.dialogs.Set(actor, m)
}

// CancelDialog сбрасывает текущий диалог актора.
func (s *Service) CancelDialog(actor int64) {
	s.dialogs.Clear(actor)
}

// ContinueDialog обрабатывает свободный ввод актора в рамках активного
// диалога. Ответные сообщения уходят актору через нотификатор; nil-маркер
// означает отсутствие диалога. Нечитаемый ввод не сбрасывает диалог —
// актор может повторить попытку.
func (s *Service) ContinueDialog(ctx context.Context, actor int64, text, photoID string) error {
	m, ok := s.dialogs.Get(actor)
	if !ok {
		return ErrNoDialog
	}

	switch marker := m.(type) {
	case dialog.AwaitInvoiceAmount:
		amount, err := parseAmount(text)
		if err != nil {
			return s.retry(ctx, actor, "Введите сумму счёта числом, например 5500 или 5500.50")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.IssueInvoice{Amount: amount}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, fmt.Sprintf("Счёт на %s ₴ по заказу №%d выставлен.", amount.StringFixed(2), marker.OrderID))

	case dialog.AwaitWeight:
		weight, err := parseAmount(text)
		if err != nil || !weight.IsPositive() {
			return s.retry(ctx, actor, "Введите вес посылки в килограммах, например 1.2")
		}
		s.dialogs.Set(actor, dialog.AwaitTariffCurrency{OrderID: marker.OrderID, Weight: weight})
		return s.reply(ctx, actor, "В какой валюте тариф? (USD, EUR или GBP)")

	case dialog.AwaitTariffCurrency:
		currency, ok := parseCurrency(text)
		if !ok {
			return s.retry(ctx, actor, "Не понял валюту. Введите USD, EUR или GBP.")
		}
		s.dialogs.Set(actor, dialog.AwaitTariffRate{OrderID: marker.OrderID, Weight: marker.Weight, Currency: currency})
		return s.reply(ctx, actor, fmt.Sprintf("Введите тариф за килограмм в %s, например 12.5", currency))

	case dialog.AwaitTariffRate:
		tariff, err := parseAmount(text)
		if err != nil || !tariff.IsPositive() {
			return s.retry(ctx, actor, "Введите тариф числом, например 12.5")
		}
		ev := orderflow.IssueWeightInvoice{Weight: marker.Weight, Tariff: tariff, Currency: marker.Currency}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, ev); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, fmt.Sprintf("Счёт за доставку по заказу №%d выставлен.", marker.OrderID))

	case dialog.AwaitTrackNumber:
		number := strings.TrimSpace(text)
		if number == "" {
			return s.retry(ctx, actor, "Введите трек-номер.")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.SetTrackNumber{Number: number}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, fmt.Sprintf("Трек %s сохранён, заказ №%d в пути.", number, marker.OrderID))

	case dialog.AwaitDeliveryTrack:
		number := strings.TrimSpace(text)
		if number == "" {
			return s.retry(ctx, actor, "Введите номер ТТН.")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.SetDeliveryTrack{Number: number}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, fmt.Sprintf("ТТН сохранена, заказ №%d завершён.", marker.OrderID))

	case dialog.AwaitCancelReason:
		reason := strings.TrimSpace(text)
		if reason == "" {
			return s.retry(ctx, actor, "Укажите причину отмены.")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.Cancel{Reason: reason}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, fmt.Sprintf("Заказ №%d отменён.", marker.OrderID))

	case dialog.AwaitAskText:
		body := strings.TrimSpace(text)
		if body == "" {
			return s.retry(ctx, actor, "Введите текст сообщения клиенту.")
		}
		s.dialogs.Clear(actor)
		if err := s.AskCustomer(ctx, marker.OrderID, body); err != nil {
			return err
		}
		return s.reply(ctx, actor, "Сообщение отправлено клиенту.")

	case dialog.AwaitRateValue:
		value, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(text), ",", ".", 1), 64)
		if err != nil {
			return s.retry(ctx, actor, "Введите значение числом, например 42.5")
		}
		if err := s.SetRate(ctx, marker.Key, value); err != nil {
			return s.retry(ctx, actor, "Значение должно быть положительным числом.")
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, fmt.Sprintf("Настройка %s обновлена: %v", marker.Key, value))

	case dialog.AwaitAdminChatID:
		chatID, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return s.retry(ctx, actor, "Введите числовой идентификатор чата администратора.")
		}
		s.dialogs.Clear(actor)
		if err := s.AddAdmin(ctx, chatID, ""); err != nil {
			return err
		}
		return s.reply(ctx, actor, fmt.Sprintf("Администратор %d добавлен.", chatID))

	case dialog.AwaitReceipt:
		if photoID == "" {
			return s.retry(ctx, actor, "Пришлите фото или скан квитанции об оплате.")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.SubmitReceipt{FileID: photoID}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, "Квитанция получена, оплата на проверке. Мы сообщим, когда подтвердим её.")

	case dialog.AwaitWeightReceipt:
		if photoID == "" {
			return s.retry(ctx, actor, "Пришлите фото или скан квитанции об оплате доставки.")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.SubmitWeightReceipt{FileID: photoID}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, "Квитанция получена, оплата доставки на проверке.")

	case dialog.AwaitShippingDetails:
		address := strings.TrimSpace(text)
		if address == "" {
			return s.retry(ctx, actor, "Введите ФИО, город и отделение для отправки.")
		}
		if _, err := s.ApplyEvent(ctx, marker.OrderID, orderflow.SubmitAddress{Address: address}); err != nil {
			s.dialogs.Clear(actor)
			return err
		}
		s.dialogs.Clear(actor)
		return s.reply(ctx, actor, "Данные для отправки сохранены. Заказ скоро будет передан в доставку.")

	case dialog.AwaitCartDetails:
		details := strings.TrimSpace(text)
		if details == "" {
			return s.retry(ctx, actor, "Укажите размер и цвет, например: размер M, чёрный.")
		}
		item := model.CartItem{
			ChatID:    actor,
			Title:     marker.Quote.Title,
			Amount:    marker.Quote.Total,
			Details:   details,
			SourceURL: marker.Quote.SourceURL,
		}
		s.dialogs.Clear(actor)
		if _, err := s.AddToCart(ctx, item); err != nil {
			return err
		}
		return s.reply(ctx, actor, fmt.Sprintf("«%s» добавлен в корзину: %s ₴.", item.Title, item.Amount.StringFixed(2)))

	case dialog.QuoteOffered:
		// Предложение ещё висит: ввод текстом не принимаем, ждём кнопку.
		return s.retry(ctx, actor, "Нажмите «В корзину» под предложением или пришлите другую ссылку.")

	default:
		s.dialogs.Clear(actor)
		return ErrNoDialog
	}
}

// AcceptQuote переводит показанное предложение в ввод параметров товара.
func (s *Service) AcceptQuote(ctx context.Context, actor int64) error {
	m, ok := s.dialogs.Get(actor)
	if !ok {
		return ErrNoDialog
	}
	offered, ok := m.(dialog.QuoteOffered)
	if !ok {
		return ErrNoDialog
	}
	s.dialogs.Set(actor, dialog.AwaitCartDetails{Quote: offered.Quote})
	return s.reply(ctx, actor, "Укажите параметры товара: размер, цвет и другие пожелания.")
}

// DeclineQuote сбрасывает показанное предложение.
func (s *Service) DeclineQuote(ctx context.Context, actor int64) error {
	s.dialogs.Clear(actor)
	return s.reply(ctx, actor, "Хорошо, предложение убрано. Пришлите другую ссылку, когда будете готовы.")
}

// OfferQuote показывает клиенту расчёт по ссылке и запоминает предложение
// до нажатия кнопки.
func (s *Service) OfferQuote(ctx context.Context, actor int64, q model.Quote) error {
	s.dialogs.Set(actor, dialog.QuoteOffered{Quote: q})
	text := fmt.Sprintf(
		"<b>%s</b>\nЦена магазина: %s %s\nИтого с выкупом и доставкой по курсу: <b>%s ₴</b>\n(включая сервисный сбор %s ₴)",
		q.Title, q.SourcePrice.StringFixed(2), q.Currency, q.Total.StringFixed(2), q.Commission.StringFixed(2),
	)
	return s.notifier.Send(ctx, actor, notify.Message{
		Text: text,
		Buttons: []notify.Button{
			{Text: "🛒 В корзину", Data: "cart_add"},
			{Text: "❌ Не надо", Data: "cart_skip"},
		},
	})
}

func (s *Service) reply(ctx context.Context, actor int64, text string) error {
	return s.notifier.Send(ctx, actor, notify.Message{Text: text})
}

// retry переотправляет подсказку, не трогая маркер диалога.
func (s *Service) retry(ctx context.Context, actor int64, hint string) error {
	if err := s.notifier.Send(ctx, actor, notify.Message{Text: hint}); err != nil {
		return err
	}
	return ErrBadInput
}

func parseAmount(text string) (decimal.Decimal, error) {
	cleaned := strings.Replace(strings.TrimSpace(text), ",", ".", 1)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}
	return d, nil
}

func parseCurrency(text string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "USD", "ДОЛЛАР", "$":
		return "USD", true
	case "EUR", "ЕВРО", "€":
		return "EUR", true
	case "GBP", "ФУНТ", "£":
		return "GBP", true
	}
	return "", false
}
