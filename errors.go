package auth

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidInput        = "INVALID_INPUT"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeAccountSuspended    = "ACCOUNT_SUSPENDED"
	TextCodeUnauthorized        = "UNAUTHORIZED"
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	TextCodeEmailInUse          = "EMAIL_IN_USE"
	TextCodeNoSuchAccount       = "NO_SUCH_ACCOUNT"
	TextCodeCodeIncomplete      = "VERIFICATION_CODE_INCOMPLETE"
	TextCodeCooldownActive      = "RESEND_COOLDOWN_ACTIVE"
	TextCodeConfirmationDenied  = "CONFIRMATION_DENIED"
)

// ErrInvalidInput client side validation failed, i.e. malformed email
var ErrInvalidInput = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidInput).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials email and password do not match an account
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountSuspended the account exists but has been suspended by an administrator
var ErrAccountSuspended = goerrors.New("account suspended", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountSuspended).
	WithCode(http.StatusForbidden)

// ErrUnauthorized the backend rejected the call for the current role
var ErrUnauthorized = goerrors.New("unauthorized", goerrors.CategoryAuthz).
	WithTextCode(TextCodeUnauthorized).
	WithCode(http.StatusForbidden)

// ErrNotFound the target record no longer exists
var ErrNotFound = goerrors.New("not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrProviderUnavailable network or remote service failure
var ErrProviderUnavailable = goerrors.New("service unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrEmailInUse sign up with an email that already has an account
var ErrEmailInUse = goerrors.New("email already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(goerrors.CodeConflict)

// ErrNoSuchAccount password reset for an unknown email
var ErrNoSuchAccount = goerrors.New("no account for email", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoSuchAccount).
	WithCode(goerrors.CodeNotFound)

// ErrCodeIncomplete submit before all six digits are entered
var ErrCodeIncomplete = goerrors.New("verification code is incomplete", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeIncomplete).
	WithCode(goerrors.CodeBadRequest)

// ErrCooldownActive resend requested while the cooldown is still running
var ErrCooldownActive = goerrors.New("resend is not available yet", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeCooldownActive).
	WithCode(http.StatusTooManyRequests)

// ErrConfirmationDenied the operator declined a destructive action
var ErrConfirmationDenied = goerrors.New("action not confirmed", goerrors.CategoryOperation).
	WithTextCode(TextCodeConfirmationDenied).
	WithCode(goerrors.CodeBadRequest)

// NewError clones base, attaching the underlying cause and metadata.
func NewError(base *goerrors.Error, source error, meta map[string]any) error {
	if base == nil {
		return source
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// IsError reports whether err carries the same text code as base.
func IsError(err error, base *goerrors.Error) bool {
	if err == nil || base == nil {
		return false
	}
	return HasTextCode(err, base.TextCode)
}

// HasTextCode reports whether err is a rich error with the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// FieldErrors returns the per field validation messages carried by an
// ErrInvalidInput, suitable for inline rendering next to each field.
func FieldErrors(err error) map[string]string {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) || richErr.TextCode != TextCodeInvalidInput {
		return nil
	}
	fields, _ := richErr.Metadata["fields"].(map[string]string)
	return fields
}

// UserMessage returns the human readable message shown in a banner.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return "Something went wrong. Please try again."
	}

	switch richErr.TextCode {
	case TextCodeInvalidInput:
		return "Please check the highlighted fields."
	case TextCodeInvalidCredentials:
		return "Invalid email or password."
	case TextCodeAccountSuspended:
		return "This account has been suspended. Contact support for help."
	case TextCodeUnauthorized:
		return "You are not allowed to perform this action."
	case TextCodeNotFound:
		return "The requested record no longer exists."
	case TextCodeProviderUnavailable:
		return "The service is unreachable. Check your connection and try again."
	case TextCodeEmailInUse:
		return "An account with this email already exists."
	case TextCodeNoSuchAccount:
		return "No account was found for this email."
	case TextCodeCodeIncomplete:
		return "Enter all 6 digits of the verification code."
	case TextCodeCooldownActive:
		return "Please wait before requesting another code."
	default:
		return richErr.Message
	}
}

func validationError(err error) error {
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	} else {
		fields["form"] = err.Error()
	}

	return NewError(ErrInvalidInput, err, map[string]any{"fields": fields})
}
