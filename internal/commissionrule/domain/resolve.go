package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// tierOrder lists rule tiers from most to least specific.
var tierOrder = []RuleType{
	RuleTypeStaffSpecific,
	RuleTypeServiceSpecific,
	RuleTypeGeneral,
}

// ResolveRule picks the single applicable rule out of candidates. The first
// tier with an in-force match wins; inside a tier the most recently created
// rule wins, then the highest id. Returns nil when nothing applies.
func ResolveRule(candidates []CommissionRule, staffID, serviceID, branchID snowflake.ID, at time.Time) *CommissionRule {
	for _, tier := range tierOrder {
		var best *CommissionRule
		for i := range candidates {
			rule := &candidates[i]
			if rule.RuleType != tier || !matches(rule, staffID, serviceID, branchID) || !rule.InForce(at) {
				continue
			}
			if best == nil || newer(rule, best) {
				best = rule
			}
		}
		if best != nil {
			found := *best
			return &found
		}
	}
	return nil
}

func matches(rule *CommissionRule, staffID, serviceID, branchID snowflake.ID) bool {
	if rule.BranchID != branchID {
		return false
	}
	switch rule.RuleType {
	case RuleTypeStaffSpecific:
		return rule.StaffID != nil && *rule.StaffID == staffID
	case RuleTypeServiceSpecific:
		return rule.ServiceID != nil && *rule.ServiceID == serviceID
	case RuleTypeGeneral:
		return true
	default:
		return false
	}
}

func newer(a, b *CommissionRule) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
