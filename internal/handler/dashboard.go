package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iva2004/alina-bot/internal/model"
	"github.com/iva2004/alina-bot/internal/repository"
)

type orderResponse struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	ItemAmount     string   `json:"item_amount"`
	ShippingAmount *string  `json:"shipping_amount,omitempty"`
	ShippingWeight *float64 `json:"shipping_weight,omitempty"`
	TrackNumber    string   `json:"track_number,omitempty"`
	DeliveryTrack  string   `json:"delivery_track,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// GetOrders возвращает заказы в статусе из query-параметра status.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	status, err := model.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	orders, err := h.service.OrdersByStatus(r.Context(), status, nil, limit)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.String("status", string(status)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		item := orderResponse{
			ID:            o.ID,
			Title:         o.Title,
			Status:        string(o.Status),
			ItemAmount:    o.ItemAmount.StringFixed(2),
			TrackNumber:   o.TrackNumber,
			DeliveryTrack: o.DeliveryTrackNumber,
			CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		}
		if o.ShippingAmount != nil {
			s := o.ShippingAmount.StringFixed(2)
			item.ShippingAmount = &s
		}
		if o.ShippingWeight != nil {
			wgt, _ := o.ShippingWeight.Float64()
			item.ShippingWeight = &wgt
		}
		resp = append(resp, item)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetCounters возвращает счётчики заказов по корзинам статусов.
func (h *Handler) GetCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.service.Counters(r.Context(), nil)
	if err != nil {
		h.logger.Error("get counters error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(counters); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type statsResponse struct {
	CompletedOrders int64  `json:"completed_orders"`
	Revenue         string `json:"revenue"`
}

// GetStats возвращает статистику по завершённым заказам.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Revenue(r.Context())
	if err != nil {
		h.logger.Error("get stats error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := statsResponse{
		CompletedOrders: stats.CompletedOrders,
		Revenue:         stats.Revenue.StringFixed(2),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetOrderByTrack ищет заказ по трек-номеру из query-параметра track.
func (h *Handler) GetOrderByTrack(w http.ResponseWriter, r *http.Request) {
	track := r.URL.Query().Get("track")
	if track == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.FindByTrack(r.Context(), track)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("track search error", zap.Error(err), zap.String("track", track))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := orderResponse{
		ID:            order.ID,
		Title:         order.Title,
		Status:        string(order.Status),
		ItemAmount:    order.ItemAmount.StringFixed(2),
		TrackNumber:   order.TrackNumber,
		DeliveryTrack: order.DeliveryTrackNumber,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
	}
	if order.ShippingAmount != nil {
		s := order.ShippingAmount.StringFixed(2)
		resp.ShippingAmount = &s
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
