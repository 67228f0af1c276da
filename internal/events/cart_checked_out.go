package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
)

const (
	CartCheckedOutEventName           = "CartCheckedOut"
	CartCheckedOutEventVersion        = 1
	CartCheckedOutEnvelopedSchemaPath = "contracts/events/cart/CartCheckedOut.v1.enveloped.schema.json"
	ShopServiceProducer               = "shop-service"
)

type EventEnvelope struct {
	EventName     string                `json:"eventName"`
	EventVersion  int                   `json:"eventVersion"`
	EventID       string                `json:"eventId"`
	CorrelationID string                `json:"correlationId,omitempty"`
	CausationID   string                `json:"causationId,omitempty"`
	Producer      string                `json:"producer"`
	PartitionKey  string                `json:"partitionKey"`
	Sequence      int64                 `json:"sequence"`
	OccurredAt    time.Time             `json:"occurredAt"`
	Schema        string                `json:"schema"`
	Payload       CartCheckedOutPayload `json:"payload"`
}

type CartCheckedOutPayload struct {
	CartID      string               `json:"cartId"`
	UserID      string               `json:"userId"`
	Items       []CartCheckedOutItem `json:"items"`
	TotalAmount decimal.Decimal      `json:"totalAmount"`
	Timestamp   time.Time            `json:"timestamp"`
}

type CartCheckedOutItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type EnvelopeOptions struct {
	PartitionKey  string
	Sequence      int64
	Producer      string
	CorrelationID string
	CausationID   string
	EventID       string
	OccurredAt    time.Time
}

// BuildCartCheckedOutEvent wraps a completed cart in the versioned envelope.
// Zero-valued options get fresh ids, the current time and the default producer.
func BuildCartCheckedOutEvent(c cart.Cart, opts EnvelopeOptions) EventEnvelope {
	eventID := opts.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	occurredAt := opts.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	producer := opts.Producer
	if producer == "" {
		producer = ShopServiceProducer
	}

	partitionKey := opts.PartitionKey
	if partitionKey == "" {
		partitionKey = c.UserID
	}

	payload := CartCheckedOutPayload{
		CartID:      c.ID,
		UserID:      c.UserID,
		Items:       make([]CartCheckedOutItem, 0, len(c.Items)),
		TotalAmount: c.Total,
		Timestamp:   occurredAt,
	}
	for _, it := range c.Items {
		payload.Items = append(payload.Items, CartCheckedOutItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.PriceAtAdded,
		})
	}

	return EventEnvelope{
		EventName:     CartCheckedOutEventName,
		EventVersion:  CartCheckedOutEventVersion,
		EventID:       eventID,
		CorrelationID: opts.CorrelationID,
		CausationID:   opts.CausationID,
		Producer:      producer,
		PartitionKey:  partitionKey,
		Sequence:      opts.Sequence,
		OccurredAt:    occurredAt,
		Schema:        CartCheckedOutEnvelopedSchemaPath,
		Payload:       payload,
	}
}

// Validate checks the envelope fields consumers rely on.
func (e EventEnvelope) Validate() error {
	switch {
	case e.EventName != CartCheckedOutEventName:
		return fieldErr("eventName")
	case e.EventVersion != CartCheckedOutEventVersion:
		return fieldErr("eventVersion")
	case !isUUID(e.EventID):
		return fieldErr("eventId")
	case e.CorrelationID != "" && !isUUID(e.CorrelationID):
		return fieldErr("correlationId")
	case e.Producer == "":
		return fieldErr("producer")
	case e.PartitionKey == "":
		return fieldErr("partitionKey")
	case e.Sequence < 1:
		return fieldErr("sequence")
	case e.Schema != CartCheckedOutEnvelopedSchemaPath:
		return fieldErr("schema")
	case e.OccurredAt.IsZero():
		return fieldErr("occurredAt")
	}

	p := e.Payload
	if !isUUID(p.CartID) {
		return fieldErr("payload.cartId")
	}
	if !isUUID(p.UserID) {
		return fieldErr("payload.userId")
	}
	if len(p.Items) == 0 {
		return fieldErr("payload.items")
	}
	for _, it := range p.Items {
		if !isUUID(it.ProductID) || it.Quantity < 1 || it.Price.IsNegative() {
			return fieldErr("payload.items")
		}
	}
	if p.TotalAmount.IsNegative() {
		return fieldErr("payload.totalAmount")
	}
	return nil
}

type fieldError string

func (f fieldError) Error() string { return "invalid envelope field " + string(f) }

func fieldErr(name string) error { return fieldError(name) }

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
