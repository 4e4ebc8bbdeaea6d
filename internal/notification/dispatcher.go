package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type dispatcher struct {
	db       *gorm.DB
	provider Provider
	genID    *snowflake.Node
	log      *zap.Logger
}

func NewDispatcher(db *gorm.DB, provider Provider, genID *snowflake.Node, log *zap.Logger) Dispatcher {
	return &dispatcher{
		db:       db,
		provider: provider,
		genID:    genID,
		log:      log.Named("notification.dispatcher"),
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, msg Message) {
	status := DeliverySent
	errText := ""
	if err := d.provider.Send(ctx, msg); err != nil {
		status = DeliveryFailed
		errText = err.Error()
		d.log.Warn("notification delivery failed",
			zap.String("kind", msg.Kind),
			zap.String("recipient", msg.To),
			zap.Error(err),
		)
	}

	event := NotificationEvent{
		ID:        d.genID.Generate(),
		Kind:      msg.Kind,
		Recipient: msg.To,
		Subject:   msg.Subject,
		Status:    status,
		Error:     errText,
		Metadata:  datatypes.JSONMap(msg.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&event).Error; err != nil {
		d.log.Error("record notification event", zap.Error(err))
	}
}
