package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iva2004/alina-bot/internal/dialog"
	"github.com/iva2004/alina-bot/internal/model"
	"github.com/iva2004/alina-bot/internal/notify"
	"github.com/iva2004/alina-bot/internal/orderflow"
	"github.com/iva2004/alina-bot/internal/repository"
)

type commitCall struct {
	id   int64
	from model.OrderStatus
	to   model.OrderStatus
	upd  repository.OrderUpdate
}

type stubRepo struct {
	order    *model.Order
	orderErr error

	user    *model.User
	userErr error

	commitErr error
	commits   []commitCall

	rates  map[string]float64
	counts map[model.OrderStatus]int64
	admins []int64

	checkoutOrders []model.Order
	checkoutUser   *model.User
	checkoutErr    error

	savedRates map[string]float64
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) GetOrCreateUser(ctx context.Context, chatID int64, username, fullName string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if s.user == nil {
		return nil, repository.ErrUserNotFound
	}
	return s.user, s.userErr
}

func (s *stubRepo) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	if s.order == nil {
		return nil, repository.ErrOrderNotFound
	}
	cp := *s.order
	return &cp, nil
}

func (s *stubRepo) GetOrderByTrack(ctx context.Context, number string) (*model.Order, error) {
	return s.GetOrder(ctx, 0)
}

func (s *stubRepo) CommitTransition(ctx context.Context, id int64, from, to model.OrderStatus, upd repository.OrderUpdate) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits = append(s.commits, commitCall{id: id, from: from, to: to, upd: upd})
	if s.order != nil {
		s.order.Status = to
	}
	return nil
}

func (s *stubRepo) ListOrdersByStatus(ctx context.Context, status model.OrderStatus, userID *int64, limit int) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) CountByStatuses(ctx context.Context, userID *int64, statuses ...model.OrderStatus) (int64, error) {
	var total int64
	for _, st := range statuses {
		total += s.counts[st]
	}
	return total, nil
}

func (s *stubRepo) RevenueStats(ctx context.Context) (*model.RevenueStats, error) {
	return &model.RevenueStats{}, nil
}

func (s *stubRepo) AddCartItem(ctx context.Context, item model.CartItem) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetCartItems(ctx context.Context, chatID int64) ([]model.CartItem, error) {
	return nil, nil
}

func (s *stubRepo) ClearCart(ctx context.Context, chatID int64) error { return nil }

func (s *stubRepo) Checkout(ctx context.Context, chatID int64, username, fullName string) ([]model.Order, *model.User, error) {
	return s.checkoutOrders, s.checkoutUser, s.checkoutErr
}

func (s *stubRepo) GetRate(ctx context.Context, key string, def float64) (float64, error) {
	if v, ok := s.rates[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s *stubRepo) SetRate(ctx context.Context, key string, value float64) error {
	if s.savedRates == nil {
		s.savedRates = map[string]float64{}
	}
	s.savedRates[key] = value
	return nil
}

func (s *stubRepo) IsAdmin(ctx context.Context, chatID int64) (bool, error) {
	for _, id := range s.admins {
		if id == chatID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) AdminChatIDs(ctx context.Context) ([]int64, error) { return s.admins, nil }

func (s *stubRepo) AddAdmin(ctx context.Context, chatID int64, name string) error { return nil }

func (s *stubRepo) RemoveAdmin(ctx context.Context, chatID int64) error { return nil }

type sentMessage struct {
	chatID int64
	msg    notify.Message
}

type stubNotifier struct {
	err  error
	sent []sentMessage
}

func (n *stubNotifier) Send(ctx context.Context, chatID int64, msg notify.Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, msg: msg})
	return nil
}

type stubResolver struct {
	desc model.Descriptor
	err  error
}

func (r *stubResolver) Resolve(ctx context.Context, productURL string) (model.Descriptor, error) {
	return r.desc, r.err
}

func newTestService(repo *stubRepo, n *stubNotifier, superAdmin int64) *Service {
	return NewService(repo, n, &stubResolver{}, dialog.NewMemoryStore(), zap.NewNop(), superAdmin)
}

func TestApplyEvent_CommitsAndNotifiesCustomer(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 5, UserID: 1, Title: "Куртка", Status: model.StatusNew},
		user:  &model.User{ID: 1, ChatID: 777},
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 0)

	out, err := svc.ApplyEvent(context.Background(), 5, orderflow.IssueInvoice{Amount: decimal.NewFromInt(1200)})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if out.Next != model.StatusAwaitingPayment {
		t.Fatalf("next = %q, want %q", out.Next, model.StatusAwaitingPayment)
	}

	if len(repo.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(repo.commits))
	}
	c := repo.commits[0]
	if c.from != model.StatusNew || c.to != model.StatusAwaitingPayment {
		t.Fatalf("commit %q -> %q", c.from, c.to)
	}
	if c.upd.ItemAmount == nil || c.upd.ItemAmount.StringFixed(2) != "1200.00" {
		t.Fatalf("commit item amount = %v", c.upd.ItemAmount)
	}

	if len(n.sent) != 1 || n.sent[0].chatID != 777 {
		t.Fatalf("customer notice not sent: %+v", n.sent)
	}
}

func TestApplyEvent_StaleStateStopsNotifications(t *testing.T) {
	repo := &stubRepo{
		order:     &model.Order{ID: 5, UserID: 1, Status: model.StatusPaymentReview},
		user:      &model.User{ID: 1, ChatID: 777},
		commitErr: repository.ErrOrderStale,
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 0)

	_, err := svc.ApplyEvent(context.Background(), 5, orderflow.ApprovePayment{})
	if !errors.Is(err, repository.ErrOrderStale) {
		t.Fatalf("err = %v, want ErrOrderStale", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("no notices must be sent on stale commit, got %d", len(n.sent))
	}
}

func TestApplyEvent_NotifyFailureDoesNotRollBack(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 5, UserID: 1, Status: model.StatusNew},
		user:  &model.User{ID: 1, ChatID: 777},
	}
	n := &stubNotifier{err: errors.New("gateway down")}
	svc := newTestService(repo, n, 0)

	_, err := svc.ApplyEvent(context.Background(), 5, orderflow.IssueInvoice{Amount: decimal.NewFromInt(100)})
	if err != nil {
		t.Fatalf("delivery failure must not fail the transition: %v", err)
	}
	if len(repo.commits) != 1 {
		t.Fatalf("transition must be committed, commits = %d", len(repo.commits))
	}
}

func TestApplyEvent_WeightApprovalOpensAddressDialog(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 12, UserID: 1, Status: model.StatusWeightPaymentReview},
		user:  &model.User{ID: 1, ChatID: 777},
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 0)

	if _, err := svc.ApplyEvent(context.Background(), 12, orderflow.ApproveWeightPayment{}); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	// следующий текст клиента принимается как адрес именно этого заказа,
	// даже если реквизиты ждут несколько заказов сразу
	if err := svc.ContinueDialog(context.Background(), 777, "Мария, Киев, отделение 12", ""); err != nil {
		t.Fatalf("address step: %v", err)
	}

	if len(repo.commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(repo.commits))
	}
	c := repo.commits[1]
	if c.id != 12 || c.to != model.StatusReadyToShip {
		t.Fatalf("commit order %d -> %q", c.id, c.to)
	}
	if c.upd.ShippingAddress == nil || *c.upd.ShippingAddress != "Мария, Киев, отделение 12" {
		t.Fatalf("shipping address = %v", c.upd.ShippingAddress)
	}
}

func TestApplyEvent_UsesStoredRates(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 8, UserID: 1, Status: model.StatusInTransit},
		user:  &model.User{ID: 1, ChatID: 777},
		rates: map[string]float64{"usd_rate": 41.5},
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 0)

	_, err := svc.ApplyEvent(context.Background(), 8, orderflow.IssueWeightInvoice{
		Weight:   decimal.NewFromFloat(1.5),
		Tariff:   decimal.NewFromInt(10),
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	upd := repo.commits[0].upd
	if upd.ShippingAmount == nil || upd.ShippingAmount.StringFixed(2) != "622.50" {
		t.Fatalf("shipping amount = %v, want 622.50", upd.ShippingAmount)
	}
}

func TestContinueDialog_WeightFlow(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 9, UserID: 1, Status: model.StatusInTransit},
		user:  &model.User{ID: 1, ChatID: 777},
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 0)

	const admin = int64(100)
	svc.BeginDialog(admin, dialog.AwaitWeight{OrderID: 9})

	if err := svc.ContinueDialog(context.Background(), admin, "1,5", ""); err != nil {
		t.Fatalf("weight step: %v", err)
	}
	if len(repo.commits) != 0 {
		t.Fatalf("order must stay IN TRANSIT until the tariff is entered")
	}

	if err := svc.ContinueDialog(context.Background(), admin, "usd", ""); err != nil {
		t.Fatalf("currency step: %v", err)
	}
	if len(repo.commits) != 0 {
		t.Fatalf("order must stay IN TRANSIT until the tariff is entered")
	}

	if err := svc.ContinueDialog(context.Background(), admin, "10", ""); err != nil {
		t.Fatalf("tariff step: %v", err)
	}

	if len(repo.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(repo.commits))
	}
	c := repo.commits[0]
	if c.from != model.StatusInTransit || c.to != model.StatusAwaitingWeightPayment {
		t.Fatalf("commit %q -> %q", c.from, c.to)
	}
	// 1.5 кг * 10 USD * 42.0 (курс по умолчанию) = 630.00
	if c.upd.ShippingAmount == nil || c.upd.ShippingAmount.StringFixed(2) != "630.00" {
		t.Fatalf("shipping amount = %v, want 630.00", c.upd.ShippingAmount)
	}

	if err := svc.ContinueDialog(context.Background(), admin, "что-то ещё", ""); !errors.Is(err, ErrNoDialog) {
		t.Fatalf("dialog must be cleared after the tariff, err = %v", err)
	}
}

func TestContinueDialog_BadInputKeepsMarker(t *testing.T) {
	repo := &stubRepo{
		order: &model.Order{ID: 9, UserID: 1, Status: model.StatusInTransit},
		user:  &model.User{ID: 1, ChatID: 777},
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 0)

	const admin = int64(100)
	svc.BeginDialog(admin, dialog.AwaitWeight{OrderID: 9})

	err := svc.ContinueDialog(context.Background(), admin, "тяжёлая", "")
	if !errors.Is(err, ErrBadInput) {
		t.Fatalf("err = %v, want ErrBadInput", err)
	}

	// после подсказки корректный ввод продолжает тот же диалог
	if err := svc.ContinueDialog(context.Background(), admin, "2", ""); err != nil {
		t.Fatalf("retry after hint: %v", err)
	}
}

func TestContinueDialog_WithoutDialog(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubNotifier{}, 0)

	err := svc.ContinueDialog(context.Background(), 1, "привет", "")
	if !errors.Is(err, ErrNoDialog) {
		t.Fatalf("err = %v, want ErrNoDialog", err)
	}
}

func TestCounters_MergesBothInvoiceBuckets(t *testing.T) {
	repo := &stubRepo{
		counts: map[model.OrderStatus]int64{
			model.StatusAwaitingPayment:       2,
			model.StatusAwaitingWeightPayment: 3,
			model.StatusPaymentReview:         1,
			model.StatusWeightPaymentReview:   4,
			model.StatusCompleted:             7,
		},
	}
	svc := newTestService(repo, &stubNotifier{}, 0)

	c, err := svc.Counters(context.Background(), nil)
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if c.Unpaid != 5 {
		t.Fatalf("Unpaid = %d, want 5", c.Unpaid)
	}
	if c.Review != 5 {
		t.Fatalf("Review = %d, want 5", c.Review)
	}
	if c.Done != 7 {
		t.Fatalf("Done = %d, want 7", c.Done)
	}
}

func TestCheckout_NotifiesEveryStaffChatOnce(t *testing.T) {
	repo := &stubRepo{
		checkoutOrders: []model.Order{
			{ID: 1, Title: "Платье"},
			{ID: 2, Title: "Туфли"},
		},
		checkoutUser: &model.User{ID: 3, ChatID: 500, FullName: "Мария"},
		admins:       []int64{10, 99},
	}
	n := &stubNotifier{}
	svc := newTestService(repo, n, 99)

	orders, err := svc.Checkout(context.Background(), 500, "maria", "Мария")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}

	// суперадмин уже есть в списке администраторов, дублей быть не должно:
	// 2 заказа на 2 чата
	if len(n.sent) != 4 {
		t.Fatalf("staff notices = %d, want 4", len(n.sent))
	}
	if !strings.Contains(n.sent[0].msg.Text, "Новый заказ") {
		t.Fatalf("unexpected notice text %q", n.sent[0].msg.Text)
	}
	if n.sent[0].msg.Buttons[0].Data != fmt.Sprintf("adm_invoice_%d", orders[0].ID) {
		t.Fatalf("unexpected button data %q", n.sent[0].msg.Buttons[0].Data)
	}
}

func TestResolveAndQuote_AppliesCommission(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, &stubNotifier{}, &stubResolver{
		desc: model.Descriptor{Title: "Кеды", Price: decimal.NewFromInt(100), Currency: "USD"},
	}, dialog.NewMemoryStore(), zap.NewNop(), 0)

	q, err := svc.ResolveAndQuote(context.Background(), "https://shop.example/item/1")
	if err != nil {
		t.Fatalf("ResolveAndQuote: %v", err)
	}

	// курс по умолчанию 42.0, комиссия 20%
	if q.Total.StringFixed(2) != "5040.00" {
		t.Fatalf("total = %s, want 5040.00", q.Total.StringFixed(2))
	}
	if q.Commission.StringFixed(2) != "840.00" {
		t.Fatalf("commission = %s, want 840.00", q.Commission.StringFixed(2))
	}
}

func TestIsStaff_SuperAdminAlwaysStaff(t *testing.T) {
	svc := newTestService(&stubRepo{admins: []int64{10}}, &stubNotifier{}, 99)

	for id, want := range map[int64]bool{99: true, 10: true, 11: false} {
		got, err := svc.IsStaff(context.Background(), id)
		if err != nil {
			t.Fatalf("IsStaff(%d): %v", id, err)
		}
		if got != want {
			t.Fatalf("IsStaff(%d) = %v, want %v", id, got, want)
		}
	}
}

func TestSetRate_RejectsUnknownKeyAndNonPositive(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, &stubNotifier{}, 0)

	if err := svc.SetRate(context.Background(), "btc_rate", 1); !errors.Is(err, ErrBadInput) {
		t.Fatalf("unknown key: err = %v, want ErrBadInput", err)
	}
	if err := svc.SetRate(context.Background(), "usd_rate", 0); !errors.Is(err, ErrBadInput) {
		t.Fatalf("zero value: err = %v, want ErrBadInput", err)
	}

	if err := svc.SetRate(context.Background(), "usd_rate", 43.5); err != nil {
		t.Fatalf("SetRate: %v", err)
	}
	if repo.savedRates["usd_rate"] != 43.5 {
		t.Fatalf("saved rate = %v, want 43.5", repo.savedRates["usd_rate"])
	}
}

func TestRemoveAdmin_ProtectsSuperAdmin(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubNotifier{}, 99)

	if err := svc.RemoveAdmin(context.Background(), 99); !errors.Is(err, ErrBadInput) {
		t.Fatalf("err = %v, want ErrBadInput", err)
	}
	if err := svc.RemoveAdmin(context.Background(), 10); err != nil {
		t.Fatalf("RemoveAdmin: %v", err)
	}
}
