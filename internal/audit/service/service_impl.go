package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/internal/auditcontext"
	"github.com/stewardhq/steward/pkg/db/pagination"
	"github.com/stewardhq/steward/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	repo  domain.Repository
	genID *snowflake.Node
	log   *zap.Logger
}

func NewService(repo domain.Repository, genID *snowflake.Node, log *zap.Logger) domain.Service {
	return &service{
		repo:  repo,
		genID: genID,
		log:   log.Named("audit.service"),
	}
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, entry domain.Entry) error {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	row := domain.AuditLog{
		ID:            s.genID.Generate(),
		ActorType:     domain.ActorSystem,
		Action:        entry.Action,
		TargetType:    entry.TargetType,
		TargetID:      entry.TargetID,
		Metadata:      datatypes.JSONMap(entry.Metadata),
		IPAddress:     auditcontext.IPAddressFromContext(ctx),
		UserAgent:     auditcontext.UserAgentFromContext(ctx),
		CorrelationID: correlation.ExtractCorrelationID(ctx),
		CreatedAt:     time.Now().UTC(),
	}
	if actor, ok := auditcontext.ActorFromContext(ctx); ok {
		row.ActorType = actor.Type
		row.ActorID = actor.ID
	}

	return repo.Insert(ctx, row)
}

func (s *service) List(ctx context.Context, filter domain.Filter, p pagination.Pagination) ([]domain.AuditLog, *pagination.PageInfo, error) {
	return s.repo.List(ctx, filter, p)
}
