package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/shop-service-go/internal/cart"
)

const publishTimeout = 3 * time.Second

var _ cart.CheckoutPublisher = (*CartEventsPublisher)(nil)

// CartEventsPublisher publishes CartCheckedOut envelopes to the events
// exchange. Sequences are per user, so consumers can order one user's
// checkouts.
type CartEventsPublisher struct {
	ch       amqpChannel
	conn     io.Closer
	seq      SequenceRepository
	producer string
	logger   *log.Logger
	now      func() time.Time
}

// NewCartEventsPublisher takes ownership of conn; Close releases it.
func NewCartEventsPublisher(conn *amqp.Connection, seq SequenceRepository, logger *log.Logger) (*CartEventsPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newCartEventsPublisher(ch, seq, logger)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newCartEventsPublisher(ch amqpChannel, seq SequenceRepository, logger *log.Logger) (*CartEventsPublisher, error) {
	// Declare the exchange so publish never fails due to missing infra.
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare %s: %w", EventsExchange, err)
	}
	return &CartEventsPublisher{
		ch:       ch,
		seq:      seq,
		producer: ShopServiceProducer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the channel and then the owned connection, if any.
func (p *CartEventsPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}

func (p *CartEventsPublisher) PublishCartCheckedOut(ctx context.Context, c cart.Cart) error {
	seq, err := p.seq.NextSequence(ctx, c.UserID)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	env := BuildCartCheckedOutEvent(c, EnvelopeOptions{
		PartitionKey:  c.UserID,
		Sequence:      seq,
		Producer:      p.producer,
		CorrelationID: CorrelationIDFrom(ctx),
		CausationID:   c.ID,
		OccurredAt:    p.now(),
	})
	if err := env.Validate(); err != nil {
		return fmt.Errorf("build CartCheckedOut: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal CartCheckedOut: %w", err)
	}

	if err := p.publishJSON(ctx, CartCheckedOutRoutingKey, env.EventID, body); err != nil {
		return fmt.Errorf("publish CartCheckedOut: %w", err)
	}
	if p.logger != nil {
		p.logger.Printf("published %s cart=%s user=%s seq=%d", CartCheckedOutEventName, c.ID, c.UserID, seq)
	}
	return nil
}

func (p *CartEventsPublisher) publishJSON(ctx context.Context, routingKey, messageID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
}
