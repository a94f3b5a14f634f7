// Package handler содержит HTTP-обработчики транспортного слоя ассистента:
// приём обновлений чатов от шлюза и служебные эндпоинты панели.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iva2004/alina-bot/internal/dialog"
	"github.com/iva2004/alina-bot/internal/middleware"
	"github.com/iva2004/alina-bot/internal/model"
	"github.com/iva2004/alina-bot/internal/notify"
	"github.com/iva2004/alina-bot/internal/orderflow"
	"github.com/iva2004/alina-bot/internal/repository"
	"github.com/iva2004/alina-bot/internal/resolver"
	"github.com/iva2004/alina-bot/internal/service"
)

// Service определяет контракт бизнес-логики, используемой обработчиками.
type Service interface {
	RegisterActor(ctx context.Context, chatID int64, username, fullName string) (*model.User, error)
	IsStaff(ctx context.Context, chatID int64) (bool, error)
	ApplyEvent(ctx context.Context, orderID int64, ev orderflow.Event) (*orderflow.Outcome, error)
	BeginDialog(actor int64, m dialog.Marker)
	CancelDialog(actor int64)
	ContinueDialog(ctx context.Context, actor int64, text, photoID string) error
	ResolveAndQuote(ctx context.Context, productURL string) (*model.Quote, error)
	OfferQuote(ctx context.Context, actor int64, q model.Quote) error
	AcceptQuote(ctx context.Context, actor int64) error
	DeclineQuote(ctx context.Context, actor int64) error
	CartItems(ctx context.Context, chatID int64) ([]model.CartItem, error)
	CartTotal(items []model.CartItem) decimal.Decimal
	ClearCart(ctx context.Context, chatID int64) error
	Checkout(ctx context.Context, chatID int64, username, fullName string) ([]model.Order, error)
	Order(ctx context.Context, id int64) (*model.Order, error)
	FindByTrack(ctx context.Context, number string) (*model.Order, error)
	OrdersByStatus(ctx context.Context, status model.OrderStatus, userID *int64, limit int) ([]model.Order, error)
	Counters(ctx context.Context, userID *int64) (*model.StatusCounters, error)
	Revenue(ctx context.Context) (*model.RevenueStats, error)
	Rates(ctx context.Context) (map[string]float64, error)
	AdminList(ctx context.Context) ([]int64, error)
	RemoveAdmin(ctx context.Context, chatID int64) error
}

// Notifier отправляет ответные сообщения акторам.
type Notifier interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) error
}

// Handler реализует HTTP-обработчики транспортного слоя.
type Handler struct {
	service     Service
	notifier    Notifier
	logger      *zap.Logger
	webhookAuth *middleware.WebhookAuth
}

// NewHandler создаёт новый экземпляр обработчика.
func NewHandler(s Service, n Notifier, logger *zap.Logger, auth *middleware.WebhookAuth) *Handler {
	return &Handler{
		service:     s,
		notifier:    n,
		logger:      logger,
		webhookAuth: auth,
	}
}

type updateRequest struct {
	ChatID       int64  `json:"chat_id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	Text         string `json:"text"`
	PhotoID      string `json:"photo_id"`
	CallbackData string `json:"callback_data"`
}

// HandleUpdate принимает одно обновление чата от шлюза: нажатие кнопки,
// текст или фото. Обновление считается обработанным и при доменной ошибке —
// актор получает поясняющее сообщение; 5xx отдаётся только при сбое
// инфраструктуры, чтобы шлюз повторил доставку.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ChatID == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	u, err := h.service.RegisterActor(ctx, req.ChatID, req.Username, req.FullName)
	if err != nil {
		h.logger.Error("register actor error", zap.Error(err), zap.Int64("chat_id", req.ChatID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if req.CallbackData != "" {
		err = h.handleCallback(ctx, u, req.CallbackData)
	} else {
		err = h.handleText(ctx, u, req.Text, req.PhotoID)
	}

	if err != nil {
		if h.consumeDomainError(ctx, u.ChatID, err) {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("handle update error", zap.Error(err), zap.Int64("chat_id", req.ChatID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// consumeDomainError превращает ожидаемые доменные ошибки в сообщение актору.
func (h *Handler) consumeDomainError(ctx context.Context, chatID int64, err error) bool {
	var text string
	switch {
	case errors.Is(err, repository.ErrOrderStale):
		text = "⚠️ Статус заказа уже изменился. Обновите карточку заказа."
	case errors.Is(err, orderflow.ErrInvalidTransition):
		text = "⚠️ Это действие сейчас недоступно для заказа."
	case errors.Is(err, orderflow.ErrValidation):
		text = "⚠️ Данные не приняты, проверьте ввод."
	case errors.Is(err, repository.ErrOrderNotFound):
		text = "Заказ не найден."
	case errors.Is(err, model.ErrUnknownStatus):
		text = "⚠️ Неизвестный статус заказа. Обновите меню через /start."
	case errors.Is(err, repository.ErrCartEmpty):
		text = "Корзина пуста."
	case errors.Is(err, repository.ErrAdminExists):
		text = "Такой администратор уже есть."
	case errors.Is(err, resolver.ErrNotResolved):
		text = "Не удалось распознать товар по ссылке. Проверьте её или пришлите другую."
	case errors.Is(err, service.ErrNotStaff):
		text = "Эта команда доступна только администраторам."
	case errors.Is(err, service.ErrBadInput):
		// подсказка уже отправлена внутри диалога
		return true
	case errors.Is(err, service.ErrNoDialog):
		text = "Не понял. Пришлите ссылку на товар или воспользуйтесь меню /start."
	default:
		return false
	}

	if text != "" {
		if sendErr := h.notifier.Send(ctx, chatID, notify.Message{Text: text}); sendErr != nil {
			h.logger.Warn("error notice not delivered", zap.Int64("chat_id", chatID), zap.Error(sendErr))
		}
	}
	return true
}

// handleText обрабатывает свободный текст или фото: команды, активный диалог,
// ссылки на товары, для администраторов — поиск по трек-номеру, для клиентов —
// адрес доставки, когда заказ его ждёт.
func (h *Handler) handleText(ctx context.Context, u *model.User, text, photoID string) error {
	trimmed := strings.TrimSpace(text)

	switch trimmed {
	case "/start":
		return h.sendMainMenu(ctx, u)
	case "/admin":
		return h.sendStaffMenu(ctx, u)
	case "/cancel":
		h.service.CancelDialog(u.ChatID)
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Диалог сброшен."})
	}

	err := h.service.ContinueDialog(ctx, u.ChatID, trimmed, photoID)
	if !errors.Is(err, service.ErrNoDialog) {
		return err
	}

	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		q, err := h.service.ResolveAndQuote(ctx, trimmed)
		if err != nil {
			return err
		}
		return h.service.OfferQuote(ctx, u.ChatID, *q)
	}

	staff, err := h.service.IsStaff(ctx, u.ChatID)
	if err != nil {
		return err
	}
	if staff && trimmed != "" {
		order, err := h.service.FindByTrack(ctx, trimmed)
		if err != nil {
			return err
		}
		return h.sendStaffOrderCard(ctx, u.ChatID, order)
	}

	// Клиент без диалога: текст принимается как адрес отправки, если ровно
	// один его заказ этого ждёт.
	if trimmed != "" {
		waiting, err := h.service.OrdersByStatus(ctx, model.StatusAwaitingShippingDetails, &u.ID, 2)
		if err != nil {
			return err
		}
		if len(waiting) == 1 {
			_, err := h.service.ApplyEvent(ctx, waiting[0].ID, orderflow.SubmitAddress{Address: trimmed})
			if err != nil {
				return err
			}
			return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Данные для отправки сохранены."})
		}
	}

	return service.ErrNoDialog
}

// handleCallback разбирает данные нажатой кнопки. Идентификатор заказа —
// последний сегмент; токен статуса внутри данных кодирует пробелы
// подчёркиваниями.
func (h *Handler) handleCallback(ctx context.Context, u *model.User, data string) error {
	switch data {
	case "cart_add":
		return h.service.AcceptQuote(ctx, u.ChatID)
	case "cart_skip":
		return h.service.DeclineQuote(ctx, u.ChatID)
	case "cart_view":
		return h.sendCart(ctx, u)
	case "cart_clear":
		if err := h.service.ClearCart(ctx, u.ChatID); err != nil {
			return err
		}
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Корзина очищена."})
	case "cart_checkout":
		orders, err := h.service.Checkout(ctx, u.ChatID, u.Username, u.FullName)
		if err != nil {
			return err
		}
		return h.notifier.Send(ctx, u.ChatID, notify.Message{
			Text: fmt.Sprintf("✅ Оформлено заказов: %d. Мы свяжемся с вами после проверки наличия.", len(orders)),
		})
	case "my_orders":
		return h.sendCustomerCounters(ctx, u)
	}

	if token, ok := strings.CutPrefix(data, "my_status_"); ok {
		status, err := model.ParseStatus(token)
		if err != nil {
			return err
		}
		return h.sendOrderList(ctx, u.ChatID, status, &u.ID, false)
	}

	if strings.HasPrefix(data, "user_") {
		return h.handleCustomerCallback(ctx, u, data)
	}

	staff, err := h.service.IsStaff(ctx, u.ChatID)
	if err != nil {
		return err
	}
	if !staff {
		return service.ErrNotStaff
	}
	return h.handleStaffCallback(ctx, u, data)
}

func (h *Handler) handleCustomerCallback(ctx context.Context, u *model.User, data string) error {
	if id, ok := tailID(data, "user_pay_check_"); ok {
		if err := h.requireOwn(ctx, u, id); err != nil {
			return err
		}
		h.service.BeginDialog(u.ChatID, dialog.AwaitReceipt{OrderID: id})
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Пришлите фото или скан квитанции об оплате."})
	}
	if id, ok := tailID(data, "user_pay_weight_"); ok {
		if err := h.requireOwn(ctx, u, id); err != nil {
			return err
		}
		h.service.BeginDialog(u.ChatID, dialog.AwaitWeightReceipt{OrderID: id})
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Пришлите фото или скан квитанции об оплате доставки."})
	}
	return service.ErrNoDialog
}

func (h *Handler) requireOwn(ctx context.Context, u *model.User, orderID int64) error {
	order, err := h.service.Order(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != u.ID {
		return repository.ErrOrderNotFound
	}
	return nil
}

func (h *Handler) handleStaffCallback(ctx context.Context, u *model.User, data string) error {
	type dialogEntry struct {
		prefix string
		marker func(id int64) dialog.Marker
		prompt string
	}

	dialogEntries := []dialogEntry{
		{"adm_invoice_", func(id int64) dialog.Marker { return dialog.AwaitInvoiceAmount{OrderID: id} },
			"Введите сумму счёта в гривнах."},
		{"adm_weight_", func(id int64) dialog.Marker { return dialog.AwaitWeight{OrderID: id} },
			"Введите вес посылки в килограммах."},
		{"adm_track_", func(id int64) dialog.Marker { return dialog.AwaitTrackNumber{OrderID: id} },
			"Введите трек-номер международной доставки."},
		{"adm_set_ttn_", func(id int64) dialog.Marker { return dialog.AwaitDeliveryTrack{OrderID: id} },
			"Введите номер ТТН."},
		{"adm_cancel_", func(id int64) dialog.Marker { return dialog.AwaitCancelReason{OrderID: id} },
			"Укажите причину отмены."},
		{"adm_ask_", func(id int64) dialog.Marker { return dialog.AwaitAskText{OrderID: id} },
			"Введите текст сообщения клиенту."},
	}

	for _, e := range dialogEntries {
		if id, ok := tailID(data, e.prefix); ok {
			h.service.BeginDialog(u.ChatID, e.marker(id))
			return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: e.prompt})
		}
	}

	events := []struct {
		prefix string
		event  func(id int64) orderflow.Event
		done   string
	}{
		{"adm_pay_weight_ok_", func(int64) orderflow.Event { return orderflow.ApproveWeightPayment{} }, "Оплата доставки подтверждена."},
		{"adm_pay_weight_bad_", func(int64) orderflow.Event { return orderflow.RejectWeightPayment{} }, "Оплата доставки отклонена, клиенту отправлен повторный запрос."},
		{"adm_pay_ok_", func(int64) orderflow.Event { return orderflow.ApprovePayment{} }, "Оплата подтверждена."},
		{"adm_pay_bad_", func(int64) orderflow.Event { return orderflow.RejectPayment{} }, "Оплата отклонена, клиенту отправлен повторный запрос."},
		{"adm_missing_", func(int64) orderflow.Event { return orderflow.MarkUnavailable{Reason: "Товара нет в наличии"} }, "Заказ закрыт: товара нет в наличии."},
	}

	for _, e := range events {
		if id, ok := tailID(data, e.prefix); ok {
			if _, err := h.service.ApplyEvent(ctx, id, e.event(id)); err != nil {
				return err
			}
			return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: e.done})
		}
	}

	switch data {
	case "adm_counters":
		return h.sendStaffCounters(ctx, u)
	case "adm_stats":
		stats, err := h.service.Revenue(ctx)
		if err != nil {
			return err
		}
		return h.notifier.Send(ctx, u.ChatID, notify.Message{
			Text: fmt.Sprintf("📈 Завершённых заказов: %d\nВыручка: %s ₴", stats.CompletedOrders, stats.Revenue.StringFixed(2)),
		})
	case "adm_rates":
		return h.sendRates(ctx, u)
	case "adm_admins":
		return h.sendAdminList(ctx, u)
	case "adm_add_admin":
		h.service.BeginDialog(u.ChatID, dialog.AwaitAdminChatID{})
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: "Введите идентификатор чата нового администратора."})
	}

	if token, ok := strings.CutPrefix(data, "rate_set_"); ok {
		h.service.BeginDialog(u.ChatID, dialog.AwaitRateValue{Key: token})
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: fmt.Sprintf("Введите новое значение %s.", token)})
	}
	if id, ok := tailID(data, "adm_del_admin_"); ok {
		if err := h.service.RemoveAdmin(ctx, id); err != nil {
			return err
		}
		return h.notifier.Send(ctx, u.ChatID, notify.Message{Text: fmt.Sprintf("Администратор %d удалён.", id)})
	}
	if id, ok := tailID(data, "adm_order_"); ok {
		order, err := h.service.Order(ctx, id)
		if err != nil {
			return err
		}
		return h.sendStaffOrderCard(ctx, u.ChatID, order)
	}
	if token, ok := strings.CutPrefix(data, "adm_status_"); ok {
		status, err := model.ParseStatus(token)
		if err != nil {
			return err
		}
		return h.sendOrderList(ctx, u.ChatID, status, nil, true)
	}

	return service.ErrNoDialog
}

// tailID извлекает идентификатор заказа из хвоста данных кнопки.
func tailID(data, prefix string) (int64, bool) {
	tail, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
