package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DeliveryTTL covers Notion's redelivery window for a failed webhook.
const DeliveryTTL = 24 * time.Hour

// ErrDuplicateRequest is returned when a delivery id has already been accepted.
var ErrDuplicateRequest = errors.New("duplicate request: delivery already accepted")

// Deduper remembers webhook delivery ids so a redelivered event is
// acknowledged without being evaluated twice.
type Deduper struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewDeduper(client *Client, logger *zap.Logger, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DeliveryTTL
	}
	return &Deduper{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func (d *Deduper) buildKey(deliveryID string) string {
	return fmt.Sprintf("webhook:delivery:%s", deliveryID)
}

// Reserve claims a delivery id with SET NX. It returns ErrDuplicateRequest
// if the id was claimed before. An empty id is never a duplicate.
func (d *Deduper) Reserve(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}

	set, err := d.client.rdb.SetNX(ctx, d.buildKey(deliveryID), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		d.logger.Debug("duplicate webhook delivery", zap.String("delivery_id", deliveryID))
		return ErrDuplicateRequest
	}
	return nil
}

// Release forgets a delivery id so the sender's retry is accepted. Used when
// the event was claimed but could not be queued.
func (d *Deduper) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return nil
	}
	if err := d.client.rdb.Del(ctx, d.buildKey(deliveryID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
