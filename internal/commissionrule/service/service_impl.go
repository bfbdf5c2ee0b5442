package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/salonbook/internal/clock"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    ruledomain.Repository
	RefRepo referencedomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    ruledomain.Repository
	refRepo referencedomain.Repository
}

func NewService(p Params) ruledomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("commissionrule.service"),
		genID:   p.GenID,
		clock:   c,
		repo:    p.Repo,
		refRepo: p.RefRepo,
	}
}

func (s *Service) Create(ctx context.Context, req ruledomain.CreateRuleRequest) (*ruledomain.CommissionRule, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	branch, err := s.refRepo.GetBranch(ctx, s.db, req.BranchID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		return nil, referencedomain.ErrBranchNotFound
	}

	now := s.clock.Now()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, ruledomain.ErrInvalidDateRange
	}
	rule := &ruledomain.CommissionRule{
		ID:          s.genID.Generate(),
		BranchID:    req.BranchID,
		RuleType:    req.RuleType,
		Type:        req.Type,
		Rate:        req.Rate.Round(2),
		FixedAmount: req.FixedAmount.Round(2),
		ServiceID:   req.ServiceID,
		StaffID:     req.StaffID,
		StartDate:   start,
		IsActive:    true,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.EndDate != nil {
		endAt := req.EndDate.UTC()
		rule.EndDate = &endAt
	}

	if err := s.repo.Insert(ctx, s.db, rule); err != nil {
		return nil, err
	}

	s.log.Info("commission rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("branch_id", rule.BranchID.String()),
		zap.String("rule_type", string(rule.RuleType)),
		zap.String("type", string(rule.Type)),
	)
	return rule, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*ruledomain.CommissionRule, error) {
	rule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ruledomain.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context, req ruledomain.ListRulesRequest) ([]ruledomain.CommissionRule, error) {
	rules, err := s.repo.List(ctx, s.db, req.BranchID, req.ActiveOnly)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []ruledomain.CommissionRule{}
	}
	return rules, nil
}

// Deactivate is idempotent: deactivating an inactive rule returns it unchanged.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (*ruledomain.CommissionRule, error) {
	rule, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return rule, nil
	}

	now := s.clock.Now()
	if err := s.repo.Deactivate(ctx, s.db, id, now); err != nil {
		return nil, err
	}
	rule.IsActive = false
	rule.UpdatedAt = now

	s.log.Info("commission rule deactivated", zap.String("rule_id", id.String()))
	return rule, nil
}

// Resolve returns the rule that applies to the staff member and service, or
// nil when no commission is owed.
func (s *Service) Resolve(ctx context.Context, req ruledomain.ResolveRequest) (*ruledomain.CommissionRule, error) {
	at := req.At
	if at.IsZero() {
		at = s.clock.Now()
	}

	candidates, err := s.repo.ListCandidates(ctx, s.db, req.BranchID, req.StaffID, req.ServiceID)
	if err != nil {
		return nil, err
	}

	rule := ruledomain.ResolveRule(candidates, req.StaffID, req.ServiceID, req.BranchID, at)
	if rule == nil {
		s.log.Debug("no commission rule in force",
			zap.String("branch_id", req.BranchID.String()),
			zap.String("staff_id", req.StaffID.String()),
			zap.String("service_id", req.ServiceID.String()),
		)
		return nil, nil
	}
	return rule, nil
}

func validateCreate(req *ruledomain.CreateRuleRequest) error {
	if !req.RuleType.Valid() {
		return ruledomain.ErrInvalidRuleType
	}
	if !req.Type.Valid() {
		return ruledomain.ErrInvalidCommissionType
	}

	req.StaffID = nonZero(req.StaffID)
	req.ServiceID = nonZero(req.ServiceID)
	switch req.RuleType {
	case ruledomain.RuleTypeStaffSpecific:
		if req.StaffID == nil {
			return ruledomain.ErrMissingStaff
		}
		if req.ServiceID != nil {
			return ruledomain.ErrUnexpectedService
		}
	case ruledomain.RuleTypeServiceSpecific:
		if req.ServiceID == nil {
			return ruledomain.ErrMissingService
		}
		if req.StaffID != nil {
			return ruledomain.ErrUnexpectedStaff
		}
	case ruledomain.RuleTypeGeneral:
		if req.StaffID != nil {
			return ruledomain.ErrUnexpectedStaff
		}
		if req.ServiceID != nil {
			return ruledomain.ErrUnexpectedService
		}
	}

	switch req.Type {
	case ruledomain.CommissionTypePercentage:
		if req.Rate.IsNegative() || req.Rate.GreaterThan(hundred) {
			return ruledomain.ErrInvalidRate
		}
		req.FixedAmount = decimal.Zero
	case ruledomain.CommissionTypeFixedAmount:
		if req.FixedAmount.IsNegative() {
			return ruledomain.ErrInvalidFixedAmount
		}
		req.Rate = decimal.Zero
	}

	return nil
}

func nonZero(id *snowflake.ID) *snowflake.ID {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}
