// Package resolver предоставляет клиент внешнего сервиса разбора страниц
// товаров: по ссылке возвращаются название, цена, валюта и картинка.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/iva2004/alina-bot/internal/model"
)

// ErrNotResolved возвращается, когда цену распознать не удалось: явная
// ошибка разбора и нулевая/отсутствующая цена трактуются одинаково —
// позиция не создаётся, клиенту сообщается о ручной проверке.
var ErrNotResolved = errors.New("product not resolved")

// Client инкапсулирует HTTP-взаимодействие с сервисом разбора страниц.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type resolveResponse struct {
	Title    string      `json:"title"`
	Price    json.Number `json:"price"`
	Currency string      `json:"currency"`
	Image    string      `json:"image,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// NewClient создаёт клиент резолвера. Разбор страницы медленный (рендеринг
// JS-цен), поэтому таймаут большой, а сетевые сбои ретраятся.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 60 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// Resolve запрашивает дескриптор товара по ссылке.
func (c *Client) Resolve(ctx context.Context, productURL string) (model.Descriptor, error) {
	if c == nil || c.baseURL == "" {
		return model.Descriptor{}, fmt.Errorf("resolver client not configured")
	}

	endpoint := fmt.Sprintf("%s/api/resolve?url=%s", c.baseURL, url.QueryEscape(productURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Descriptor{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Descriptor{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Descriptor{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Descriptor{}, fmt.Errorf("decode response: %w", err)
	}

	if result.Error != "" {
		return model.Descriptor{}, fmt.Errorf("%w: %s", ErrNotResolved, result.Error)
	}

	price, err := decimalFromNumber(result.Price)
	if err != nil || !price.IsPositive() {
		return model.Descriptor{}, fmt.Errorf("%w: price missing or zero", ErrNotResolved)
	}

	currency := strings.ToUpper(strings.TrimSpace(result.Currency))
	if currency == "" {
		currency = "USD"
	}

	return model.Descriptor{
		Title:    result.Title,
		Price:    price,
		Currency: currency,
		ImageURL: result.Image,
	}, nil
}
