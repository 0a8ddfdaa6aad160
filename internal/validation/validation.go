// Package validation provides input validation helpers for the wallet API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (64KB)
const MaxRequestSize = 64 << 10

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 256

var (
	accountNumberRegex = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)
	pinRegex           = regexp.MustCompile(`^[0-9]{4,6}$`)
	emailRegex         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccountNumber checks the account number shape (4-32 alphanumerics).
func IsValidAccountNumber(s string) bool {
	return accountNumberRegex.MatchString(s)
}

// IsValidPIN checks that a PIN is 4 to 6 digits.
func IsValidPIN(s string) bool {
	return pinRegex.MatchString(s)
}

// IsValidEmail performs a shallow shape check on an email address.
func IsValidEmail(s string) bool {
	return len(s) <= MaxStringLength && emailRegex.MatchString(s)
}

// SanitizeString trims whitespace, removes null bytes and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects the failures
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidPIN checks a PIN field when present
func ValidPIN(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value != "" && !IsValidPIN(value) {
			return &ValidationError{Field: field, Message: "must be 4 to 6 digits"}
		}
		return nil
	}
}

// ValidEmail checks an email field when present
func ValidEmail(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value != "" && !IsValidEmail(value) {
			return &ValidationError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}

// ValidAccountNumber checks an account number field when present
func ValidAccountNumber(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value != "" && !IsValidAccountNumber(value) {
			return &ValidationError{Field: field, Message: "must be 4 to 32 letters or digits"}
		}
		return nil
	}
}

// PositiveAmount checks that a decimal field is strictly positive
func PositiveAmount(field string, value decimal.Decimal) func() *ValidationError {
	return func() *ValidationError {
		if !value.IsPositive() {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// AccountParamMiddleware rejects malformed account numbers in the named URL
// parameter before the handler runs.
func AccountParamMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.Param(param); v != "" && !IsValidAccountNumber(v) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_account_number",
				"message": "account number must be 4 to 32 letters or digits",
			})
			return
		}
		c.Next()
	}
}
