package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
)

type updateInvoiceRequest struct {
	TotalAmount *decimal.Decimal             `json:"total_amount"`
	AmountPaid  *decimal.Decimal             `json:"amount_paid"`
	Status      *invoicedomain.InvoiceStatus `json:"status"`
	Notes       *string                      `json:"notes"`
	UserID      snowflake.ID                 `json:"user_id"`
}

type applyPaymentRequest struct {
	Amount            decimal.Decimal             `json:"amount"`
	Method            invoicedomain.PaymentMethod `json:"method"`
	CashRegisterLogID *snowflake.ID               `json:"cash_register_log_id"`
	UserID            snowflake.ID                `json:"user_id"`
}

type refundPaymentRequest struct {
	Reason string       `json:"reason"`
	UserID snowflake.ID `json:"user_id"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Update(c.Request.Context(), invoicedomain.UpdateInvoiceRequest{
		InvoiceID:   id,
		TotalAmount: req.TotalAmount,
		AmountPaid:  req.AmountPaid,
		Status:      req.Status,
		Notes:       req.Notes,
		UserID:      actingUser(c, req.UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ApplyPayment(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	var req applyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.invoiceSvc.ApplyPayment(c.Request.Context(), invoicedomain.ApplyPaymentRequest{
		InvoiceID:         id,
		Amount:            req.Amount,
		Method:            req.Method,
		CashRegisterLogID: req.CashRegisterLogID,
		UserID:            actingUser(c, req.UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) ListPayments(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	payments, err := s.invoiceSvc.ListPayments(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) RefundPayment(c *gin.Context) {
	invoiceID, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	paymentID, ok := requiredID(c, "payment_id", c.Param("paymentId"))
	if !ok {
		return
	}
	var req refundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.invoiceSvc.RefundPayment(c.Request.Context(), invoicedomain.RefundPaymentRequest{
		InvoiceID: invoiceID,
		PaymentID: paymentID,
		Reason:    req.Reason,
		UserID:    actingUser(c, req.UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CalculateCommission runs the commission calculation for a paid invoice on
// demand. Data is null when nothing is owed.
func (s *Server) CalculateCommission(c *gin.Context) {
	id, ok := requiredID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	item, err := s.commissionSvc.Calculate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
