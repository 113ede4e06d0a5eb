package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureHeader carries "t=<unix ts>,v1=<hex hmac>[,v1=...]".
	SignatureHeader = "Stripe-Signature"

	DefaultTolerance = 5 * time.Minute
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Event is the provider's webhook envelope. Data.Object is a payment-intent
// shaped object; only id and status are trusted after verification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// ConstructEvent verifies the signature header against the raw payload and
// only then parses it. Rejections must stay rare and final: the provider does
// not retry a 400.
func (v *WebhookVerifier) ConstructEvent(payload []byte, header string) (Event, error) {
	ts, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return Event{}, err
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return Event{}, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(v.secret, ts, payload)
	verified := false
	for _, candidate := range candidates {
		sig, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(sig, expected) {
			verified = true
			break
		}
	}
	if !verified {
		return Event{}, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}
	return ev, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}
	var ts int64 = -1
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, val)
		}
	}
	if ts < 0 || len(candidates) == 0 {
		return 0, nil, fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}
	return ts, candidates, nil
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignPayload builds a valid signature header for the given payload. Used by
// tests and local tooling to forge provider deliveries.
func SignPayload(secret string, ts time.Time, payload []byte) string {
	sig := computeSignature([]byte(secret), ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}
