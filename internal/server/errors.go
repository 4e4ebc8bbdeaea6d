package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	approvaldomain "github.com/stewardhq/steward/internal/approval/domain"
	"github.com/stewardhq/steward/internal/authorization"
	expensedomain "github.com/stewardhq/steward/internal/expense/domain"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
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
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, authorization.ErrUnauthenticated),
		errors.Is(err, accountdomain.ErrBadCredentials),
		errors.Is(err, accountdomain.ErrAccountDisabled):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, approvaldomain.ErrWrongApprover),
		errors.Is(err, expensedomain.ErrNotRequester),
		errors.Is(err, expensedomain.ErrOriginationDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, approvaldomain.ErrUnresolvableApprover):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unresolvable_approver",
			Message: err.Error(),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidUnit),
		errors.Is(err, orgdomain.ErrInvalidRole),
		errors.Is(err, orgdomain.ErrInvalidTier),
		errors.Is(err, orgdomain.ErrHierarchyCycle),
		errors.Is(err, orgdomain.ErrMaxDepthExceeded),
		errors.Is(err, orgdomain.ErrTierOrderViolation),
		errors.Is(err, orgdomain.ErrBindingInherited):
		return true
	case errors.Is(err, membershipdomain.ErrInvalidName),
		errors.Is(err, membershipdomain.ErrInvalidMembership),
		errors.Is(err, membershipdomain.ErrMembershipInactive):
		return true
	case errors.Is(err, accountdomain.ErrInvalidEvent),
		errors.Is(err, accountdomain.ErrInvalidAccountID):
		return true
	case errors.Is(err, expensedomain.ErrInvalidReport),
		errors.Is(err, expensedomain.ErrInvalidAmount),
		errors.Is(err, expensedomain.ErrNotCancellable):
		return true
	case errors.Is(err, approvaldomain.ErrInvalidFlow),
		errors.Is(err, approvaldomain.ErrInvalidAction),
		errors.Is(err, approvaldomain.ErrMissingRejectionReason),
		errors.Is(err, approvaldomain.ErrReportNotSubmittable):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, approvaldomain.ErrStaleStep),
		errors.Is(err, approvaldomain.ErrAlreadySubmitted),
		errors.Is(err, approvaldomain.ErrFlowTerminal),
		errors.Is(err, orgdomain.ErrDuplicateRoleName),
		errors.Is(err, orgdomain.ErrDuplicateUnitCode),
		errors.Is(err, membershipdomain.ErrPrimaryAlreadyActive):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, orgdomain.ErrUnitNotFound),
		errors.Is(err, orgdomain.ErrRoleNotFound),
		errors.Is(err, orgdomain.ErrBindingNotFound),
		errors.Is(err, membershipdomain.ErrPersonNotFound),
		errors.Is(err, membershipdomain.ErrMembershipNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, expensedomain.ErrReportNotFound),
		errors.Is(err, approvaldomain.ErrFlowNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog labels request errors for the access log without
// leaking internals.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status >= http.StatusBadRequest:
		return "client", payload.Type
	default:
		return "", ""
	}
}
