package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
)

type listCommissionRulesQuery struct {
	BranchID   string `form:"branch_id"`
	ActiveOnly string `form:"active_only"`
}

type resolveCommissionRuleQuery struct {
	StaffID   string `form:"staff_id"`
	ServiceID string `form:"service_id"`
	BranchID  string `form:"branch_id"`
	At        string `form:"at"`
}

type listCommissionsQuery struct {
	StaffID string `form:"staff_id"`
	Status  string `form:"status"`
}

func (s *Server) CreateCommissionRule(c *gin.Context) {
	var req ruledomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.ruleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) ListCommissionRules(c *gin.Context) {
	var query listCommissionRulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	branchID, ok := requiredID(c, "branch_id", query.BranchID)
	if !ok {
		return
	}
	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	req := ruledomain.ListRulesRequest{BranchID: branchID}
	if activeOnly != nil {
		req.ActiveOnly = *activeOnly
	}
	rules, err := s.ruleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// ResolveCommissionRule returns the rule that would apply; data is null when
// none does.
func (s *Server) ResolveCommissionRule(c *gin.Context) {
	var query resolveCommissionRuleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	staffID, ok := requiredID(c, "staff_id", query.StaffID)
	if !ok {
		return
	}
	serviceID, ok := requiredID(c, "service_id", query.ServiceID)
	if !ok {
		return
	}
	branchID, ok := requiredID(c, "branch_id", query.BranchID)
	if !ok {
		return
	}
	at, err := parseOptionalTime(query.At, false)
	if err != nil {
		AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
		return
	}

	req := ruledomain.ResolveRequest{StaffID: staffID, ServiceID: serviceID, BranchID: branchID}
	if at != nil {
		req.At = *at
	}
	rule, err := s.ruleSvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeactivateCommissionRule(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	rule, err := s.ruleSvc.Deactivate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ListCommissions(c *gin.Context) {
	var query listCommissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	staffID, ok := requiredID(c, "staff_id", query.StaffID)
	if !ok {
		return
	}

	items, err := s.commissionSvc.ListByStaff(c.Request.Context(), commissiondomain.ListByStaffRequest{
		StaffID: staffID,
		Status:  commissiondomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) MarkCommissionPaid(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	item, err := s.commissionSvc.MarkPaid(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) CancelCommission(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	item, err := s.commissionSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
