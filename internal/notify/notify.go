// Package notify предоставляет клиент отправки сообщений в чат-транспорт.
// С точки зрения ядра доставка — fire-and-forget: вызывающий код обязан
// перехватить ошибку (клиент заблокировал бота, чат недоступен), записать
// в лог и не откатывать уже зафиксированный переход заказа.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Button описывает кнопку инлайн-клавиатуры.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Message — полезная нагрузка уведомления: HTML-текст и необязательная
// клавиатура, по кнопке в строке.
type Message struct {
	Text    string
	Buttons []Button
}

// Client инкапсулирует HTTP-взаимодействие с шлюзом чат-транспорта.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент отправки уведомлений.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type sendRequest struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]Button `json:"inline_keyboard"`
}

// Send доставляет сообщение получателю. Сетевые сбои ретраятся с коротким
// фибоначчиевым бэкоффом; ответ 4xx не ретраится — получатель недоступен.
func (c *Client) Send(ctx context.Context, chatID int64, msg Message) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notify client not configured")
	}

	payload := sendRequest{
		ChatID:    chatID,
		Text:      msg.Text,
		ParseMode: "HTML",
	}
	if len(msg.Buttons) > 0 {
		rows := make([][]Button, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, []Button{b})
		}
		payload.ReplyMarkup = &replyMarkup{InlineKeyboard: rows}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("do request: %w", err))
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.RetryableError(fmt.Errorf("gateway status: %d", resp.StatusCode))
		default:
			return fmt.Errorf("recipient unreachable: status %d", resp.StatusCode)
		}
	})
}
