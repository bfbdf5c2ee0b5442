package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	referencedomain "github.com/smallbiznis/salonbook/internal/reference/domain"
	"github.com/smallbiznis/salonbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

type errorKind string

const (
	kindNotFound           errorKind = "not_found"
	kindInvalidArgument    errorKind = "invalid_argument"
	kindConflict           errorKind = "conflict"
	kindFailedPrecondition errorKind = "failed_precondition"
	kindInternal           errorKind = "internal_error"
)

var kindStatus = map[errorKind]int{
	kindNotFound:           http.StatusNotFound,
	kindInvalidArgument:    http.StatusBadRequest,
	kindConflict:           http.StatusConflict,
	kindFailedPrecondition: http.StatusUnprocessableEntity,
	kindInternal:           http.StatusInternalServerError,
}

// errorKinds assigns every domain sentinel its kind. Order matters only for
// errors that wrap more than one sentinel.
var errorKinds = []struct {
	err  error
	kind errorKind
}{
	{ErrNotFound, kindNotFound},
	{invoicedomain.ErrInvoiceNotFound, kindNotFound},
	{invoicedomain.ErrPaymentNotFound, kindNotFound},
	{commissiondomain.ErrCommissionNotFound, kindNotFound},
	{ruledomain.ErrRuleNotFound, kindNotFound},
	{cashdomain.ErrDayNotFound, kindNotFound},
	{referencedomain.ErrBranchNotFound, kindNotFound},
	{referencedomain.ErrCustomerNotFound, kindNotFound},
	{referencedomain.ErrStaffNotFound, kindNotFound},
	{referencedomain.ErrServiceNotFound, kindNotFound},
	{referencedomain.ErrAppointmentNotFound, kindNotFound},
	{gorm.ErrRecordNotFound, kindNotFound},

	{ErrInvalidRequest, kindInvalidArgument},
	{invoicedomain.ErrInvalidAmount, kindInvalidArgument},
	{invoicedomain.ErrInvalidPaymentMethod, kindInvalidArgument},
	{invoicedomain.ErrInvalidSource, kindInvalidArgument},
	{invoicedomain.ErrInvalidStatus, kindInvalidArgument},
	{invoicedomain.ErrInvalidUser, kindInvalidArgument},
	{invoicedomain.ErrOverpayment, kindInvalidArgument},
	{invoicedomain.ErrPaidExceedsTotal, kindInvalidArgument},
	{invoicedomain.ErrTotalBelowPayments, kindInvalidArgument},
	{invoicedomain.ErrCashLogRequiresCash, kindInvalidArgument},
	{ruledomain.ErrInvalidRuleType, kindInvalidArgument},
	{ruledomain.ErrInvalidCommissionType, kindInvalidArgument},
	{ruledomain.ErrInvalidRate, kindInvalidArgument},
	{ruledomain.ErrInvalidFixedAmount, kindInvalidArgument},
	{ruledomain.ErrMissingStaff, kindInvalidArgument},
	{ruledomain.ErrMissingService, kindInvalidArgument},
	{ruledomain.ErrUnexpectedStaff, kindInvalidArgument},
	{ruledomain.ErrUnexpectedService, kindInvalidArgument},
	{ruledomain.ErrInvalidDateRange, kindInvalidArgument},
	{commissiondomain.ErrInvalidStatus, kindInvalidArgument},
	{cashdomain.ErrInvalidAmount, kindInvalidArgument},
	{cashdomain.ErrInvalidMovementType, kindInvalidArgument},
	{cashdomain.ErrInvalidUser, kindInvalidArgument},
	{cashdomain.ErrInvalidDate, kindInvalidArgument},
	{cashdomain.ErrCashLogNotFound, kindInvalidArgument},
	{cashdomain.ErrCashLogMismatch, kindInvalidArgument},
	{auditdomain.ErrInvalidPageToken, kindInvalidArgument},
	{auditdomain.ErrInvalidTimeRange, kindInvalidArgument},
	{auditdomain.ErrInvalidAction, kindInvalidArgument},
	{pagination.ErrInvalidCursor, kindInvalidArgument},

	{invoicedomain.ErrAppointmentInvoiced, kindConflict},
	{invoicedomain.ErrAppointmentCustomerMatch, kindConflict},
	{invoicedomain.ErrPaymentAlreadyRefunded, kindConflict},
	{commissiondomain.ErrInvalidTransition, kindConflict},
	{cashdomain.ErrAlreadyOpened, kindConflict},
	{cashdomain.ErrAlreadyClosed, kindConflict},
	{cashdomain.ErrCashLogLinked, kindConflict},
	{gorm.ErrDuplicatedKey, kindConflict},

	{invoicedomain.ErrInvoiceClosed, kindFailedPrecondition},
	{cashdomain.ErrRegisterNotOpen, kindFailedPrecondition},
	{cashdomain.ErrNotOpened, kindFailedPrecondition},
	{cashdomain.ErrDayClosed, kindFailedPrecondition},
}

var errorMessages = map[string]string{
	cashdomain.ErrRegisterNotOpen.Error():        "cannot accept cash payment without an open register",
	invoicedomain.ErrOverpayment.Error():         "payment amount exceeds the remaining debt",
	invoicedomain.ErrAppointmentInvoiced.Error(): "appointment already has an invoice",
	cashdomain.ErrNotOpened.Error():              "cash day has not been opened",
	cashdomain.ErrAlreadyOpened.Error():          "cash day already opened",
	cashdomain.ErrAlreadyClosed.Error():          "cash day already closed",
	cashdomain.ErrCashLogLinked.Error():          "cash register log already backs another payment",
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func classify(err error) (errorKind, string) {
	if err == nil {
		return kindInternal, ErrInternal.Error()
	}
	if vErr := asValidationErrors(err); vErr != nil {
		code := ErrInvalidRequest.Error()
		if len(vErr.Errors) > 0 {
			code = vErr.Errors[0].Code
		}
		return kindInvalidArgument, code
	}
	for _, entry := range errorKinds {
		if errors.Is(err, entry.err) {
			return entry.kind, entry.err.Error()
		}
	}
	return kindInternal, ErrInternal.Error()
}

func mapError(err error) (int, errorPayload) {
	kind, code := classify(err)
	payload := errorPayload{
		Type:    string(kind),
		Code:    code,
		Message: errorMessage(kind, code),
	}
	if vErr := asValidationErrors(err); vErr != nil {
		payload.Message = "validation error"
		payload.Errors = vErr.Errors
	}
	return kindStatus[kind], payload
}

// classifyErrorForLog feeds the request logger without leaking messages.
func classifyErrorForLog(err error) (string, string) {
	kind, code := classify(err)
	return string(kind), code
}

func errorMessage(kind errorKind, code string) string {
	if kind == kindInternal {
		return "internal server error"
	}
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return strings.ReplaceAll(code, "_", " ")
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}
