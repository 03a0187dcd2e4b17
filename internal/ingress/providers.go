package ingress

import (
	"encoding/json"
	"fmt"
)

// achEventPayload is the subset of an ACH processor's webhook body this
// adapter cares about; everything else rides through untouched as Data.
type achEventPayload struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Trace   string `json:"trace_number"`
	Amount  int64  `json:"amount_cents"`
	Date    string `json:"effective_date"`
}

// ACHProvider parses an ACH processor's webhook payload; the processor's
// event_id becomes the ProviderEvent's EventID. The business key from
// trace, date and amount is computed later, by the validation consumer.
type ACHProvider struct {
	secret string
}

func NewACHProvider(secret string) *ACHProvider {
	return &ACHProvider{secret: secret}
}

func (p *ACHProvider) Name() string   { return "ach" }
func (p *ACHProvider) Secret() string { return p.secret }

func (p *ACHProvider) ParseEvent(body []byte) (ProviderEvent, error) {
	var payload achEventPayload

	if err := json.Unmarshal(body, &payload); err != nil {
		return ProviderEvent{}, fmt.Errorf("invalid ach webhook payload: %w", err)
	}

	if payload.EventID == "" {
		return ProviderEvent{}, fmt.Errorf("ach webhook missing event_id")
	}

	isPayment := payload.Type == "payment.received" || payload.Type == "payment.returned"

	return ProviderEvent{
		EventID:   payload.EventID,
		Type:      payload.Type,
		IsPayment: isPayment,
		Data:      payload,
	}, nil
}
