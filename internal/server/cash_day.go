package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
)

type openCashDayRequest struct {
	UserID         snowflake.ID    `json:"user_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Description    string          `json:"description"`
}

type cashMovementRequest struct {
	UserID      snowflake.ID       `json:"user_id"`
	Type        cashdomain.LogType `json:"type"`
	Amount      decimal.Decimal    `json:"amount"`
	Description string             `json:"description"`
}

type closeCashDayRequest struct {
	UserID        snowflake.ID    `json:"user_id"`
	ActualBalance decimal.Decimal `json:"actual_balance"`
	Description   string          `json:"description"`
}

func (s *Server) OpenCashDay(c *gin.Context) {
	branchID, ok := requiredID(c, "branch_id", c.Param("branchId"))
	if !ok {
		return
	}
	var req openCashDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	log, err := s.cashSvc.OpenDay(c.Request.Context(), cashdomain.OpenDayRequest{
		BranchID:       branchID,
		UserID:         actingUser(c, req.UserID),
		OpeningBalance: req.OpeningBalance,
		Description:    req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": log})
}

func (s *Server) RecordCashMovement(c *gin.Context) {
	branchID, ok := requiredID(c, "branch_id", c.Param("branchId"))
	if !ok {
		return
	}
	var req cashMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	log, err := s.cashSvc.RecordMovement(c.Request.Context(), cashdomain.RecordMovementRequest{
		BranchID:    branchID,
		UserID:      actingUser(c, req.UserID),
		Type:        cashdomain.LogType(strings.ToUpper(strings.TrimSpace(string(req.Type)))),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": log})
}

func (s *Server) CloseCashDay(c *gin.Context) {
	branchID, ok := requiredID(c, "branch_id", c.Param("branchId"))
	if !ok {
		return
	}
	var req closeCashDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.cashSvc.CloseDay(c.Request.Context(), cashdomain.CloseDayRequest{
		BranchID:      branchID,
		UserID:        actingUser(c, req.UserID),
		ActualBalance: req.ActualBalance,
		Description:   req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetCashDay(c *gin.Context) {
	branchID, ok := requiredID(c, "branch_id", c.Param("branchId"))
	if !ok {
		return
	}

	day, err := s.cashSvc.GetDayDetails(c.Request.Context(), branchID, strings.TrimSpace(c.Param("date")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": day})
}
