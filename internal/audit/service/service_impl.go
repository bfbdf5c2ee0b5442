package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	"github.com/smallbiznis/salonbook/internal/clock"
	obscontext "github.com/smallbiznis/salonbook/internal/observability/context"
	"github.com/smallbiznis/salonbook/pkg/db/pagination"
	"github.com/smallbiznis/salonbook/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: c,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := actorOf(ctx, entry)
	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		BranchID:   branchOf(ctx, entry.BranchID),
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   idString(entry.TargetID),
		Metadata:   metadataOf(ctx, entry.Metadata),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	after, err := decodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageSize := req.Size()
	items, err := s.repo.List(ctx, s.db, auditdomain.Query{
		BranchID:   req.BranchID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		After:      after,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, encodeCursor)
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item != nil {
			logs = append(logs, *item)
		}
	}
	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func decodeCursor(token string) (*auditdomain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.Cursor{ID: id, CreatedAt: createdAt}, nil
}

func encodeCursor(item *auditdomain.AuditLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        item.ID.String(),
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

// actorOf prefers the entry's actor and falls back to the one stamped on the
// request context, then to system.
func actorOf(ctx context.Context, entry auditdomain.Entry) (string, *string) {
	actorType := strings.TrimSpace(string(entry.ActorType))
	actorID := idString(entry.ActorID)
	if actorType == "" {
		ctxType, ctxID := obscontext.ActorFromContext(ctx)
		actorType = ctxType
		if actorID == nil && strings.TrimSpace(ctxID) != "" {
			trimmed := strings.TrimSpace(ctxID)
			actorID = &trimmed
		}
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	return actorType, actorID
}

func branchOf(ctx context.Context, branchID snowflake.ID) *snowflake.ID {
	if branchID != 0 {
		return &branchID
	}
	parsed, err := snowflake.ParseString(obscontext.BranchIDFromContext(ctx))
	if err != nil || parsed == 0 {
		return nil
	}
	return &parsed
}

func metadataOf(ctx context.Context, in map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range in {
		if key != "" {
			out[key] = value
		}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		out["request_id"] = requestID
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		out[correlation.PayloadKey] = cid
	}
	return out
}

func idString(id snowflake.ID) *string {
	if id == 0 {
		return nil
	}
	value := id.String()
	return &value
}
