package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
)

// Webhook POSTs each trade as a JSON TradeEvent to a fixed URL. Any
// non-2xx response is treated as a failure.
type Webhook struct {
	url    string
	symbol string
	client *http.Client
}

// NewWebhook creates a Webhook sink with the given request timeout.
func NewWebhook(url, symbol string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		symbol: symbol,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// OnTrade implements domain.TradeListener.
func (w *Webhook) OnTrade(t domain.Trade) error {
	event := NewTradeEvent(w.symbol, t)
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", event.EventID)
	req.Header.Set("X-Event-Type", "trade.executed")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
