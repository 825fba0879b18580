// Package audit records who did what to which payment object. Audit writes
// are a side channel: a failed write is logged and never fails the operation
// it describes.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Log struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	AccountID  snowflake.ID   `json:"account_id" gorm:"not null;index"`
	Action     string         `json:"action" gorm:"type:text;not null"`
	TargetType string         `json:"target_type" gorm:"type:text;not null"`
	TargetID   string         `json:"target_id" gorm:"type:text"`
	Metadata   datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null"`
}

func (Log) TableName() string { return "audit_logs" }

type Service interface {
	AuditLog(ctx context.Context, accountID snowflake.ID, action, targetType, targetID string, metadata map[string]any)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("audit"),
		genID: p.GenID,
	}
}

func (s *service) AuditLog(ctx context.Context, accountID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	var payload datatypes.JSON
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.log.Warn("audit metadata not serializable", zap.String("action", action), zap.Error(err))
		} else {
			payload = datatypes.JSON(raw)
		}
	}
	entry := Log{
		ID:         s.genID.Generate(),
		AccountID:  accountID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.String("target_id", targetID),
			zap.Error(err))
	}
}

var Module = fx.Module("audit", fx.Provide(NewService))
