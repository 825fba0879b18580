// Package event persists domain events through a transactional outbox. A
// downstream relay drains the table; this core only guarantees that each
// terminal transition leaves at most one row behind.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

type OutboxRecord struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventType     string         `json:"event_type" gorm:"type:text;not null"`
	AccountID     snowflake.ID   `json:"account_id" gorm:"not null;index"`
	PaymentID     snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	TransactionID snowflake.ID   `json:"transaction_id" gorm:"not null"`
	DedupeKey     string         `json:"dedupe_key" gorm:"type:text;not null;uniqueIndex"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Published     bool           `json:"published" gorm:"not null;default:false"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (OutboxRecord) TableName() string { return "payment_events_outbox" }

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *metrics.Metrics `optional:"true"`
}

type outboxPublisher struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *metrics.Metrics
}

func NewPublisher(p Params) domain.Publisher {
	return &outboxPublisher{
		db:      p.DB,
		log:     p.Log.Named("event"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

// Publish writes the event to the outbox. The dedupe key absorbs retries of
// the same transition; errors are logged and swallowed.
func (p *outboxPublisher) Publish(ctx context.Context, event domain.Event) {
	var payload datatypes.JSON
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			p.log.Warn("event payload not serializable", zap.String("type", event.Type), zap.Error(err))
		} else {
			payload = datatypes.JSON(raw)
		}
	}
	res := p.db.WithContext(ctx).Exec(
		`INSERT INTO payment_events_outbox (
			id, event_type, account_id, payment_id, transaction_id,
			dedupe_key, payload, published, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		p.genID.Generate(),
		event.Type,
		event.AccountID,
		event.PaymentID,
		event.TransactionID,
		event.DedupeKey,
		payload,
		false,
		time.Now().UTC(),
	)
	if res.Error != nil {
		p.log.Warn("event publish failed",
			zap.String("type", event.Type),
			zap.String("dedupe_key", event.DedupeKey),
			zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 && p.metrics != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues(event.Type).Inc()
	}
}

var Module = fx.Module("event", fx.Provide(NewPublisher))
