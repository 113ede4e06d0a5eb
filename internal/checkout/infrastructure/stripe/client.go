// Package stripe talks to the payment provider: opening payment intents and
// verifying the signature on webhook deliveries.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/galeria-obsidiana/checkout/internal/checkout/application"
)

const DefaultBaseURL = "https://api.stripe.com"

// Client creates payment intents over the provider's form-encoded HTTP API.
// No retries here: a failure surfaces to the orchestrator, which rolls the
// checkout back and lets the end user retry the whole operation.
type Client struct {
	log       *slog.Logger
	httpc     *http.Client
	baseURL   string
	secretKey string
}

func NewClient(log *slog.Logger, baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		log:       log,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
	}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Error        struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateIntent(ctx context.Context, req application.IntentRequest) (application.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", req.Currency)
	form.Add("payment_method_types[]", "card")
	form.Set("metadata[order_id]", req.OrderID.String())
	form.Set("metadata[user_id]", req.UserID.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return application.Intent{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return application.Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return application.Intent{}, fmt.Errorf("create payment intent: read response: %w", err)
	}

	var parsed intentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return application.Intent{}, fmt.Errorf("create payment intent: status %d: malformed response", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("payment intent rejected", "status", resp.StatusCode, "provider_msg", parsed.Error.Message)
		return application.Intent{}, fmt.Errorf("create payment intent: status %d: %s", resp.StatusCode, parsed.Error.Message)
	}
	if parsed.ID == "" || parsed.ClientSecret == "" {
		return application.Intent{}, fmt.Errorf("create payment intent: response missing id or client secret")
	}
	return application.Intent{ID: parsed.ID, ClientSecret: parsed.ClientSecret}, nil
}
