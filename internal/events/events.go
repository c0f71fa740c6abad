// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/safar/fishmart/internal/models"
)

const (
	TypeOrderPlaced    = "order.placed"
	TypeOrderConfirmed = "order.confirmed"
	TypeOrderRejected  = "order.rejected"

	envelopeVersion = 1
	producerName    = "fishmart-api"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderLine struct {
	ProductID       int64  `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

type OrderPlacedPayload struct {
	OrderID     int64       `json:"order_id"`
	UserID      int64       `json:"user_id"`
	Items       []OrderLine `json:"items"`
	Subtotal    string      `json:"subtotal"`
	Tax         string      `json:"tax"`
	DeliveryFee string      `json:"delivery_fee"`
	TotalAmount string      `json:"total_amount"`
}

type OrderDecidedPayload struct {
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	Status    string    `json:"status"`
	DecidedBy int64     `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
}

// Publisher hands events to the broker. Publish must not block on the
// network; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Key partitions by order so every event of one order stays in sequence.
func (e Envelope) Key() []byte {
	return []byte(e.CorrelationID)
}

func newEnvelope(eventType string, orderID int64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       raw,
	}, nil
}

func OrderPlaced(order *models.Order) (Envelope, error) {
	lines := make([]OrderLine, len(order.Items))
	for i, it := range order.Items {
		lines[i] = OrderLine{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase.StringFixed(2),
		}
	}

	return newEnvelope(TypeOrderPlaced, order.ID, OrderPlacedPayload{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       lines,
		Subtotal:    order.Subtotal.StringFixed(2),
		Tax:         order.Tax.StringFixed(2),
		DeliveryFee: order.DeliveryFee.StringFixed(2),
		TotalAmount: order.TotalAmount.StringFixed(2),
	})
}

// OrderDecided builds the confirmed or rejected event for a decided order.
func OrderDecided(order *models.Order) (Envelope, error) {
	eventType := TypeOrderConfirmed
	if order.Status == models.OrderStatusRejected {
		eventType = TypeOrderRejected
	}

	payload := OrderDecidedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
	}
	if order.ConfirmedBy != nil {
		payload.DecidedBy = *order.ConfirmedBy
	}
	if order.ConfirmedAt != nil {
		payload.DecidedAt = order.ConfirmedAt.UTC()
	}

	return newEnvelope(eventType, order.ID, payload)
}

type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error { return nil }
