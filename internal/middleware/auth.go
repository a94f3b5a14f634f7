// Package middleware содержит HTTP middleware транспортного слоя ассистента.
package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"net/http"
)

const secretHeader = "X-Webhook-Secret"

// WebhookAuth проверяет общий секрет транспортного шлюза: обновления чатов и
// служебные эндпоинты принимаются только от шлюза, знающего секрет.
type WebhookAuth struct {
	secretKey []byte
}

// NewWebhookAuth создаёт новый экземпляр WebhookAuth с указанным секретом.
// Пустой секрет заменяется случайным: эндпоинты остаются закрытыми, пока
// секрет не задан явно.
func NewWebhookAuth(secret string) *WebhookAuth {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &WebhookAuth{
		secretKey: key,
	}
}

// Middleware сверяет секрет из заголовка запроса с настроенным.
// Сравниваются не сами секреты, а их HMAC-суммы: длина секрета не
// просачивается через время сравнения.
func (a *WebhookAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(secretHeader)
		if presented == "" || !a.verify(presented) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *WebhookAuth) verify(presented string) bool {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(presented))
	got := mac.Sum(nil)

	mac = hmac.New(sha256.New, a.secretKey)
	mac.Write(a.secretKey)
	want := mac.Sum(nil)

	return hmac.Equal(got, want)
}
