package orderflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iva2004/alina-bot/internal/invoice"
	"github.com/iva2004/alina-bot/internal/model"
)

func testFx() invoice.FxFunc {
	return invoice.StaticFx(map[string]decimal.Decimal{
		"USD": decimal.NewFromFloat(42.0),
		"EUR": decimal.NewFromFloat(45.5),
		"GBP": decimal.NewFromFloat(53.0),
	})
}

func apply(t *testing.T, o model.Order, ev Event) (model.Order, Outcome) {
	t.Helper()

	out, err := Decide(o, ev, testFx())
	if err != nil {
		t.Fatalf("Decide(%T) in %q: %v", ev, o.Status, err)
	}
	if out.Prev != model.OrderStatus(model.NormalizeStatus(string(o.Status))) {
		t.Fatalf("Prev = %q, want %q", out.Prev, o.Status)
	}

	o.Status = out.Next
	if out.Changes.ItemAmount != nil {
		o.ItemAmount = *out.Changes.ItemAmount
	}
	if out.Changes.ShippingWeight != nil {
		o.ShippingWeight = out.Changes.ShippingWeight
	}
	if out.Changes.ShippingAmount != nil {
		o.ShippingAmount = out.Changes.ShippingAmount
	}
	if out.Changes.TrackNumber != nil {
		o.TrackNumber = *out.Changes.TrackNumber
	}
	if out.Changes.DeliveryTrackNumber != nil {
		o.DeliveryTrackNumber = *out.Changes.DeliveryTrackNumber
	}
	if out.Changes.ShippingAddress != nil {
		o.ShippingAddress = *out.Changes.ShippingAddress
	}
	if out.Changes.StaffNote != nil {
		o.StaffNote = *out.Changes.StaffNote
	}
	return o, out
}

func TestDecide_FullHappyPath(t *testing.T) {
	o := model.Order{ID: 7, Title: "Кроссовки", Status: model.StatusNew}

	o, out := apply(t, o, IssueInvoice{Amount: decimal.NewFromFloat(5040.004)})
	if o.Status != model.StatusAwaitingPayment {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusAwaitingPayment)
	}
	if got := o.ItemAmount.StringFixed(2); got != "5040.00" {
		t.Fatalf("item amount = %s, want 5040.00", got)
	}
	if len(out.Notices) != 1 || out.Notices[0].To != RecipientCustomer {
		t.Fatalf("invoice must notify the customer, got %+v", out.Notices)
	}
	if out.Notices[0].Actions[0].Data != "user_pay_check_7" {
		t.Fatalf("unexpected receipt action data %q", out.Notices[0].Actions[0].Data)
	}

	o, out = apply(t, o, SubmitReceipt{FileID: "file-1"})
	if o.Status != model.StatusPaymentReview {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusPaymentReview)
	}
	if out.Notices[0].To != RecipientStaff {
		t.Fatalf("receipt must notify staff")
	}

	o, _ = apply(t, o, ApprovePayment{})
	if o.Status != model.StatusAwaitingTracking {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusAwaitingTracking)
	}

	o, _ = apply(t, o, SetTrackNumber{Number: "LX123456789CN"})
	if o.Status != model.StatusInTransit || o.TrackNumber != "LX123456789CN" {
		t.Fatalf("unexpected order after track: %+v", o)
	}

	o, out = apply(t, o, IssueWeightInvoice{
		Weight:   decimal.NewFromFloat(1.5),
		Tariff:   decimal.NewFromFloat(10),
		Currency: "USD",
	})
	if o.Status != model.StatusAwaitingWeightPayment {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusAwaitingWeightPayment)
	}
	// 1.5 кг * 10 USD * 42.0 = 630.00 грн
	if got := o.ShippingAmount.StringFixed(2); got != "630.00" {
		t.Fatalf("shipping amount = %s, want 630.00", got)
	}
	if o.ItemAmount.StringFixed(2) != "5040.00" {
		t.Fatalf("item invoice must not change when weight invoice is issued")
	}
	if out.Notices[0].Actions[0].Data != "user_pay_weight_7" {
		t.Fatalf("unexpected weight receipt action %q", out.Notices[0].Actions[0].Data)
	}

	o, _ = apply(t, o, SubmitWeightReceipt{FileID: "file-2"})
	o, _ = apply(t, o, ApproveWeightPayment{})
	if o.Status != model.StatusAwaitingShippingDetails {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusAwaitingShippingDetails)
	}

	o, _ = apply(t, o, SubmitAddress{Address: "Иванова Мария, Киев, отделение 12"})
	if o.Status != model.StatusReadyToShip {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusReadyToShip)
	}

	o, out = apply(t, o, SetDeliveryTrack{Number: "20450012345678"})
	if o.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusCompleted)
	}
	if !strings.Contains(out.Notices[0].Text, "20450012345678") {
		t.Fatalf("final notice must contain the delivery track, got %q", out.Notices[0].Text)
	}
}

func TestDecide_RejectPaymentReturnsToAwaiting(t *testing.T) {
	o := model.Order{ID: 1, Status: model.StatusPaymentReview}

	o, out := apply(t, o, RejectPayment{})
	if o.Status != model.StatusAwaitingPayment {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusAwaitingPayment)
	}
	if out.Notices[0].To != RecipientCustomer {
		t.Fatalf("rejection must notify the customer")
	}

	// повторный чек после отказа снова уходит на проверку
	o, _ = apply(t, o, SubmitReceipt{FileID: "file-retry"})
	if o.Status != model.StatusPaymentReview {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusPaymentReview)
	}
}

func TestDecide_RejectWeightPaymentReturnsToAwaiting(t *testing.T) {
	o := model.Order{ID: 2, Status: model.StatusWeightPaymentReview}

	o, _ = apply(t, o, RejectWeightPayment{})
	if o.Status != model.StatusAwaitingWeightPayment {
		t.Fatalf("status = %q, want %q", o.Status, model.StatusAwaitingWeightPayment)
	}
}

func TestDecide_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		status model.OrderStatus
		event  Event
	}{
		{"invoice when already invoiced", model.StatusAwaitingPayment, IssueInvoice{Amount: decimal.NewFromInt(100)}},
		{"approve before receipt", model.StatusAwaitingPayment, ApprovePayment{}},
		{"receipt before invoice", model.StatusNew, SubmitReceipt{FileID: "f"}},
		{"track before payment", model.StatusAwaitingPayment, SetTrackNumber{Number: "LX1"}},
		{"weight invoice before transit", model.StatusAwaitingTracking, IssueWeightInvoice{Weight: decimal.NewFromInt(1), Tariff: decimal.NewFromInt(1), Currency: "USD"}},
		{"address before weight approval", model.StatusWeightPaymentReview, SubmitAddress{Address: "Киев"}},
		{"ttn before address", model.StatusAwaitingShippingDetails, SetDeliveryTrack{Number: "204"}},
		{"cancel completed", model.StatusCompleted, Cancel{Reason: "передумал"}},
		{"mark unavailable after invoice", model.StatusAwaitingPayment, MarkUnavailable{}},
		{"weight approve on item review", model.StatusPaymentReview, ApproveWeightPayment{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := model.Order{ID: 5, Status: tt.status}
			_, err := Decide(o, tt.event, testFx())
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Decide(%T) in %q: err = %v, want ErrInvalidTransition", tt.event, tt.status, err)
			}
		})
	}
}

func TestDecide_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		status model.OrderStatus
		event  Event
	}{
		{"zero invoice", model.StatusNew, IssueInvoice{Amount: decimal.Zero}},
		{"negative invoice", model.StatusNew, IssueInvoice{Amount: decimal.NewFromInt(-5)}},
		{"empty track", model.StatusAwaitingTracking, SetTrackNumber{}},
		{"zero weight", model.StatusInTransit, IssueWeightInvoice{Weight: decimal.Zero, Tariff: decimal.NewFromInt(1), Currency: "USD"}},
		{"zero tariff", model.StatusInTransit, IssueWeightInvoice{Weight: decimal.NewFromInt(1), Tariff: decimal.Zero, Currency: "USD"}},
		{"empty address", model.StatusAwaitingShippingDetails, SubmitAddress{}},
		{"empty ttn", model.StatusReadyToShip, SetDeliveryTrack{}},
		{"empty cancel reason", model.StatusNew, Cancel{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := model.Order{ID: 5, Status: tt.status}
			_, err := Decide(o, tt.event, testFx())
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Decide(%T): err = %v, want ErrValidation", tt.event, err)
			}
		})
	}
}

func TestDecide_CancelFromAnyActiveStatus(t *testing.T) {
	statuses := []model.OrderStatus{
		model.StatusNew,
		model.StatusAwaitingPayment,
		model.StatusPaymentReview,
		model.StatusAwaitingTracking,
		model.StatusInTransit,
		model.StatusAwaitingWeightPayment,
		model.StatusWeightPaymentReview,
		model.StatusAwaitingShippingDetails,
		model.StatusReadyToShip,
	}

	for _, status := range statuses {
		o := model.Order{ID: 3, Status: status}
		out, err := Decide(o, Cancel{Reason: "нет оплаты"}, testFx())
		if err != nil {
			t.Fatalf("cancel in %q: %v", status, err)
		}
		if out.Next != model.StatusCompleted {
			t.Fatalf("cancel in %q: next = %q, want %q", status, out.Next, model.StatusCompleted)
		}
		if out.Changes.StaffNote == nil || *out.Changes.StaffNote != "ОТМЕНА: нет оплаты" {
			t.Fatalf("cancel in %q: staff note = %v", status, out.Changes.StaffNote)
		}
	}
}

func TestDecide_MarkUnavailableDefaultsReason(t *testing.T) {
	o := model.Order{ID: 4, Status: model.StatusNew}

	out, err := Decide(o, MarkUnavailable{}, testFx())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.Next != model.StatusCompleted {
		t.Fatalf("next = %q, want %q", out.Next, model.StatusCompleted)
	}
	if *out.Changes.StaffNote != "ОТМЕНА: Товара нет в наличии" {
		t.Fatalf("staff note = %q", *out.Changes.StaffNote)
	}
}

func TestDecide_NormalizesDirtyStatus(t *testing.T) {
	o := model.Order{ID: 9, Status: "awaiting_payment"}

	out, err := Decide(o, SubmitReceipt{FileID: "f"}, testFx())
	if err != nil {
		t.Fatalf("Decide with dirty status: %v", err)
	}
	if out.Prev != model.StatusAwaitingPayment {
		t.Fatalf("prev = %q, want %q", out.Prev, model.StatusAwaitingPayment)
	}
}

func TestDecide_UnknownStatus(t *testing.T) {
	o := model.Order{ID: 9, Status: "LOST IN SPACE"}

	_, err := Decide(o, ApprovePayment{}, testFx())
	if !errors.Is(err, model.ErrUnknownStatus) {
		t.Fatalf("err = %v, want ErrUnknownStatus", err)
	}
}

func TestPendingAmounts(t *testing.T) {
	tests := []struct {
		status model.OrderStatus
		item   bool
		weight bool
	}{
		{model.StatusNew, false, false},
		{model.StatusAwaitingPayment, true, false},
		{model.StatusPaymentReview, true, false},
		{model.StatusAwaitingWeightPayment, false, true},
		{model.StatusWeightPaymentReview, false, true},
		{model.StatusCompleted, false, false},
	}

	for _, tt := range tests {
		item, weight := PendingAmounts(model.Order{Status: tt.status})
		if item != tt.item || weight != tt.weight {
			t.Fatalf("PendingAmounts(%q) = (%v, %v), want (%v, %v)", tt.status, item, weight, tt.item, tt.weight)
		}
	}
}

func TestProgress(t *testing.T) {
	step, total := Progress(model.StatusNew)
	if step != 1 || total != 10 {
		t.Fatalf("Progress(NEW) = (%d, %d), want (1, 10)", step, total)
	}

	step, _ = Progress(model.StatusInTransit)
	if step != 5 {
		t.Fatalf("Progress(IN TRANSIT) = %d, want 5", step)
	}

	step, _ = Progress("in_transit")
	if step != 5 {
		t.Fatalf("Progress must normalize the status, got step %d", step)
	}

	step, _ = Progress("NOPE")
	if step != 0 {
		t.Fatalf("Progress(unknown) = %d, want 0", step)
	}
}
