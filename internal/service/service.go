// Package service реализует бизнес-логику ассистента выкупа заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iva2004/alina-bot/internal/dialog"
	"github.com/iva2004/alina-bot/internal/invoice"
	"github.com/iva2004/alina-bot/internal/model"
	"github.com/iva2004/alina-bot/internal/notify"
	"github.com/iva2004/alina-bot/internal/orderflow"
	"github.com/iva2004/alina-bot/internal/repository"
)

// Значения по умолчанию для курсов и комиссии: используются, пока
// администратор не задал свои через меню настроек.
const (
	defaultUSDRate    = 42.0
	defaultEURRate    = 45.5
	defaultGBPRate    = 53.0
	defaultCommission = 0.20
)

// ErrNotStaff возвращается при попытке выполнить административное действие
// без прав администратора.
var (
	ErrNotStaff = errors.New("actor is not staff")
	// ErrNoDialog возвращается, когда свободный текст пришёл вне диалога.
	ErrNoDialog = errors.New("no active dialog")
	// ErrBadInput возвращается при нечитаемом вводе внутри диалога.
	ErrBadInput = errors.New("bad dialog input")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetOrCreateUser(ctx context.Context, chatID int64, username, fullName string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByTrack(ctx context.Context, number string) (*model.Order, error)
	CommitTransition(ctx context.Context, id int64, from, to model.OrderStatus, upd repository.OrderUpdate) error
	ListOrdersByStatus(ctx context.Context, status model.OrderStatus, userID *int64, limit int) ([]model.Order, error)
	CountByStatuses(ctx context.Context, userID *int64, statuses ...model.OrderStatus) (int64, error)
	RevenueStats(ctx context.Context) (*model.RevenueStats, error)
	AddCartItem(ctx context.Context, item model.CartItem) (int64, error)
	GetCartItems(ctx context.Context, chatID int64) ([]model.CartItem, error)
	ClearCart(ctx context.Context, chatID int64) error
	Checkout(ctx context.Context, chatID int64, username, fullName string) ([]model.Order, *model.User, error)
	GetRate(ctx context.Context, key string, def float64) (float64, error)
	SetRate(ctx context.Context, key string, value float64) error
	IsAdmin(ctx context.Context, chatID int64) (bool, error)
	AdminChatIDs(ctx context.Context) ([]int64, error)
	AddAdmin(ctx context.Context, chatID int64, name string) error
	RemoveAdmin(ctx context.Context, chatID int64) error
}

// Notifier отправляет сообщения в чаты клиентов и администраторов.
type Notifier interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) error
}

// Resolver извлекает карточку товара по ссылке магазина.
type Resolver interface {
	Resolve(ctx context.Context, productURL string) (model.Descriptor, error)
}

// Service содержит бизнес-логику ассистента: применение переходов заказа,
// диалоги с пошаговым вводом, корзину и настройки.
type Service struct {
	repo         Repository
	notifier     Notifier
	resolver     Resolver
	dialogs      dialog.Store
	logger       *zap.Logger
	superAdminID int64
}

// NewService создаёт новый сервис.
func NewService(repo Repository, notifier Notifier, resolver Resolver, dialogs dialog.Store, logger *zap.Logger, superAdminID int64) *Service {
	return &Service{
		repo:         repo,
		notifier:     notifier,
		resolver:     resolver,
		dialogs:      dialogs,
		logger:       logger,
		superAdminID: superAdminID,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// IsStaff проверяет, имеет ли актор административные права. Суперадмин из
// конфигурации считается администратором всегда, даже если его нет в таблице.
func (s *Service) IsStaff(ctx context.Context, chatID int64) (bool, error) {
	if chatID == s.superAdminID {
		return true, nil
	}
	return s.repo.IsAdmin(ctx, chatID)
}

func (s *Service) fxSnapshot(ctx context.Context) (invoice.FxFunc, error) {
	usd, err := s.repo.GetRate(ctx, "usd_rate", defaultUSDRate)
	if err != nil {
		return nil, err
	}
	eur, err := s.repo.GetRate(ctx, "eur_rate", defaultEURRate)
	if err != nil {
		return nil, err
	}
	gbp, err := s.repo.GetRate(ctx, "gbp_rate", defaultGBPRate)
	if err != nil {
		return nil, err
	}

	return invoice.StaticFx(map[string]decimal.Decimal{
		"USD": decimal.NewFromFloat(usd),
		"EUR": decimal.NewFromFloat(eur),
		"GBP": decimal.NewFromFloat(gbp),
	}), nil
}

// ApplyEvent применяет событие к заказу: читает текущее состояние, вычисляет
// переход, фиксирует его с проверкой на конкурентное изменение и рассылает
// уведомления. Снимок курсов берётся один раз до вычисления — счёт не меняется,
// если курс обновили между вводом веса и фиксацией.
func (s *Service) ApplyEvent(ctx context.Context, orderID int64, ev orderflow.Event) (*orderflow.Outcome, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	fx, err := s.fxSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	out, err := orderflow.Decide(*order, ev, fx)
	if err != nil {
		return nil, err
	}

	upd := repository.OrderUpdate{
		ItemAmount:          out.Changes.ItemAmount,
		ShippingWeight:      out.Changes.ShippingWeight,
		ShippingAmount:      out.Changes.ShippingAmount,
		TrackNumber:         out.Changes.TrackNumber,
		DeliveryTrackNumber: out.Changes.DeliveryTrackNumber,
		ShippingAddress:     out.Changes.ShippingAddress,
		StaffNote:           out.Changes.StaffNote,
		ReceiptFileID:       out.Changes.ReceiptFileID,
		WeightReceiptFileID: out.Changes.WeightReceiptFileID,
	}

	if err := s.repo.CommitTransition(ctx, orderID, out.Prev, out.Next, upd); err != nil {
		return nil, err
	}

	// Заказ ждёт реквизиты отправки: открываем клиенту диалог ввода адреса,
	// чтобы его следующий текст попал к этому заказу, а не потерялся.
	if out.Next == model.StatusAwaitingShippingDetails {
		if u, err := s.repo.GetUserByID(ctx, order.UserID); err != nil {
			s.logger.Warn("customer lookup failed, address dialog not opened",
				zap.Int64("order_id", orderID), zap.Error(err))
		} else {
			s.dialogs.Set(u.ChatID, dialog.AwaitShippingDetails{OrderID: orderID})
		}
	}

	s.dispatchNotices(ctx, order, out.Notices)

	return &out, nil
}

// dispatchNotices рассылает уведомления перехода. Переход уже зафиксирован,
// поэтому сбой доставки логируется и не откатывает заказ.
func (s *Service) dispatchNotices(ctx context.Context, order *model.Order, notices []orderflow.Notice) {
	for _, n := range notices {
		msg := notify.Message{Text: n.Text}
		for _, a := range n.Actions {
			msg.Buttons = append(msg.Buttons, notify.Button{Text: a.Label, Data: a.Data})
		}

		switch n.To {
		case orderflow.RecipientCustomer:
			u, err := s.repo.GetUserByID(ctx, order.UserID)
			if err != nil {
				s.logger.Warn("customer lookup failed, notice dropped",
					zap.Int64("order_id", order.ID), zap.Error(err))
				continue
			}
			if err := s.notifier.Send(ctx, u.ChatID, msg); err != nil {
				s.logger.Warn("customer notice not delivered",
					zap.Int64("order_id", order.ID), zap.Int64("chat_id", u.ChatID), zap.Error(err))
			}
		case orderflow.RecipientStaff:
			for _, chatID := range s.staffChatIDs(ctx) {
				if err := s.notifier.Send(ctx, chatID, msg); err != nil {
					s.logger.Warn("staff notice not delivered",
						zap.Int64("order_id", order.ID), zap.Int64("chat_id", chatID), zap.Error(err))
				}
			}
		}
	}
}

func (s *Service) staffChatIDs(ctx context.Context) []int64 {
	ids, err := s.repo.AdminChatIDs(ctx)
	if err != nil {
		s.logger.Warn("admin list unavailable, falling back to super admin", zap.Error(err))
		ids = nil
	}
	if s.superAdminID != 0 {
		ids = append(ids, s.superAdminID)
	}
	return lo.Uniq(ids)
}

// ResolveAndQuote извлекает карточку товара по ссылке и считает предложение:
// итог с комиссией и отдельной строкой сервисного сбора от одной
// неокруглённой базы.
func (s *Service) ResolveAndQuote(ctx context.Context, productURL string) (*model.Quote, error) {
	desc, err := s.resolver.Resolve(ctx, productURL)
	if err != nil {
		return nil, err
	}

	commission, err := s.repo.GetRate(ctx, "commission_rate", defaultCommission)
	if err != nil {
		return nil, err
	}

	fx, err := s.fxSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	total, fee := invoice.ItemQuote(desc.Price, decimal.NewFromFloat(commission), desc.Currency, fx)

	return &model.Quote{
		Title:       desc.Title,
		SourceURL:   productURL,
		SourcePrice: desc.Price,
		Currency:    desc.Currency,
		FxRate:      fx(desc.Currency),
		Total:       total,
		Commission:  fee,
		ImageURL:    desc.ImageURL,
	}, nil
}

// AddToCart сохраняет позицию в корзине клиента.
func (s *Service) AddToCart(ctx context.Context, item model.CartItem) (int64, error) {
	return s.repo.AddCartItem(ctx, item)
}

// CartItems возвращает корзину клиента.
func (s *Service) CartItems(ctx context.Context, chatID int64) ([]model.CartItem, error) {
	return s.repo.GetCartItems(ctx, chatID)
}

// CartTotal возвращает сумму позиций корзины клиента.
func (s *Service) CartTotal(items []model.CartItem) decimal.Decimal {
	return lo.Reduce(items, func(acc decimal.Decimal, it model.CartItem, _ int) decimal.Decimal {
		return acc.Add(it.Amount)
	}, decimal.Zero)
}

// ClearCart очищает корзину клиента.
func (s *Service) ClearCart(ctx context.Context, chatID int64) error {
	return s.repo.ClearCart(ctx, chatID)
}

// Checkout превращает корзину клиента в заказы и уведомляет администраторов
// о каждом новом заказе.
func (s *Service) Checkout(ctx context.Context, chatID int64, username, fullName string) ([]model.Order, error) {
	orders, u, err := s.repo.Checkout(ctx, chatID, username, fullName)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		msg := notify.Message{
			Text: fmt.Sprintf("🆕 Новый заказ №%d\n<b>%s</b>\nКлиент: %s", o.ID, o.Title, u.FullName),
			Buttons: []notify.Button{
				{Text: "💰 Выставить счёт", Data: fmt.Sprintf("adm_invoice_%d", o.ID)},
				{Text: "❌ Нет в наличии", Data: fmt.Sprintf("adm_missing_%d", o.ID)},
			},
		}
		for _, staffID := range s.staffChatIDs(ctx) {
			if err := s.notifier.Send(ctx, staffID, msg); err != nil {
				s.logger.Warn("new order notice not delivered",
					zap.Int64("order_id", o.ID), zap.Int64("chat_id", staffID), zap.Error(err))
			}
		}
	}

	return orders, nil
}

// Order возвращает заказ по идентификатору.
func (s *Service) Order(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// FindByTrack ищет заказ по трек-номеру.
func (s *Service) FindByTrack(ctx context.Context, number string) (*model.Order, error) {
	return s.repo.GetOrderByTrack(ctx, strings.TrimSpace(number))
}

// OrdersByStatus возвращает заказы в указанном статусе. userID == nil
// означает по всем клиентам.
func (s *Service) OrdersByStatus(ctx context.Context, status model.OrderStatus, userID *int64, limit int) ([]model.Order, error) {
	return s.repo.ListOrdersByStatus(ctx, status, userID, limit)
}

// Counters собирает счётчики заказов по корзинам статусов. Оба счёта —
// за товар и за вес — попадают в одну корзину «неоплаченные».
func (s *Service) Counters(ctx context.Context, userID *int64) (*model.StatusCounters, error) {
	buckets := []struct {
		dst      *int64
		statuses []model.OrderStatus
	}{
		{statuses: []model.OrderStatus{model.StatusNew}},
		{statuses: []model.OrderStatus{model.StatusAwaitingPayment, model.StatusAwaitingWeightPayment}},
		{statuses: []model.OrderStatus{model.StatusPaymentReview, model.StatusWeightPaymentReview}},
		{statuses: []model.OrderStatus{model.StatusAwaitingTracking}},
		{statuses: []model.OrderStatus{model.StatusInTransit}},
		{statuses: []model.OrderStatus{model.StatusAwaitingShippingDetails, model.StatusReadyToShip}},
		{statuses: []model.OrderStatus{model.StatusCompleted}},
	}

	var c model.StatusCounters
	buckets[0].dst = &c.New
	buckets[1].dst = &c.Unpaid
	buckets[2].dst = &c.Review
	buckets[3].dst = &c.NoTrack
	buckets[4].dst = &c.InTransit
	buckets[5].dst = &c.Ready
	buckets[6].dst = &c.Done

	for _, b := range buckets {
		n, err := s.repo.CountByStatuses(ctx, userID, b.statuses...)
		if err != nil {
			return nil, err
		}
		*b.dst = n
	}

	return &c, nil
}

// Revenue возвращает статистику по завершённым заказам.
func (s *Service) Revenue(ctx context.Context) (*model.RevenueStats, error) {
	return s.repo.RevenueStats(ctx)
}

// Rates возвращает текущие курсы валют и комиссию.
func (s *Service) Rates(ctx context.Context) (map[string]float64, error) {
	out := map[string]float64{}
	for key, def := range map[string]float64{
		"usd_rate":        defaultUSDRate,
		"eur_rate":        defaultEURRate,
		"gbp_rate":        defaultGBPRate,
		"commission_rate": defaultCommission,
	} {
		v, err := s.repo.GetRate(ctx, key, def)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// SetRate обновляет курс или комиссию. Уже выставленные счета не
// пересчитываются.
func (s *Service) SetRate(ctx context.Context, key string, value float64) error {
	switch key {
	case "usd_rate", "eur_rate", "gbp_rate", "commission_rate":
	default:
		return fmt.Errorf("%w: unknown setting %q", ErrBadInput, key)
	}
	if value <= 0 {
		return fmt.Errorf("%w: setting must be positive", ErrBadInput)
	}
	return s.repo.SetRate(ctx, key, value)
}

// AddAdmin добавляет администратора.
func (s *Service) AddAdmin(ctx context.Context, chatID int64, name string) error {
	return s.repo.AddAdmin(ctx, chatID, name)
}

// RemoveAdmin удаляет администратора. Суперадмина удалить нельзя.
func (s *Service) RemoveAdmin(ctx context.Context, chatID int64) error {
	if chatID == s.superAdminID {
		return fmt.Errorf("%w: cannot remove super admin", ErrBadInput)
	}
	return s.repo.RemoveAdmin(ctx, chatID)
}

// AdminList возвращает chat-идентификаторы администраторов.
func (s *Service) AdminList(ctx context.Context) ([]int64, error) {
	return s.repo.AdminChatIDs(ctx)
}

// AskCustomer отправляет клиенту заказа произвольное сообщение от имени магазина.
func (s *Service) AskCustomer(ctx context.Context, orderID int64, text string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	u, err := s.repo.GetUserByID(ctx, order.UserID)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, u.ChatID, notify.Message{
		Text: fmt.Sprintf("💬 Сообщение по заказу №%d:\n%s", orderID, text),
	})
}

// RegisterActor создаёт или обновляет пользователя по chat-идентификатору.
func (s *Service) RegisterActor(ctx context.Context, chatID int64, username, fullName string) (*model.User, error) {
	return s.repo.GetOrCreateUser(ctx, chatID, username, fullName)
}
