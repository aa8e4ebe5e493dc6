package firebase

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/photolog/photolog-auth"
)

const providerName = "firebase"

// ProviderError captures normalized Identity Toolkit response details.
type ProviderError struct {
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "firebase error"
	}

	scope := providerName
	if e.Operation != "" {
		scope = fmt.Sprintf("%s %s", providerName, e.Operation)
	}

	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("%s failed: %s (%s)", scope, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}
	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{"provider": providerName}
	if e.Operation != "" {
		meta["operation"] = e.Operation
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	return meta
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// splitMessage separates "WEAK_PASSWORD : Password should be..." into code
// and description.
func splitMessage(message string) (string, string) {
	message = strings.TrimSpace(message)
	if i := strings.Index(message, " : "); i >= 0 {
		return strings.TrimSpace(message[:i]), strings.TrimSpace(message[i+3:])
	}
	return message, ""
}

// classify maps a provider failure onto the auth error taxonomy. The same
// code can mean different things per operation, i.e. EMAIL_NOT_FOUND is a
// credential failure on sign in but an unknown account on password reset.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Code == "" {
		return wrapProviderError(auth.ErrProviderUnavailable, err, nil)
	}

	switch perr.Code {
	case "EMAIL_EXISTS":
		return wrapProviderError(auth.ErrEmailInUse, err, nil)
	case "EMAIL_NOT_FOUND":
		if operation == opPasswordReset {
			return wrapProviderError(auth.ErrNoSuchAccount, err, nil)
		}
		return wrapProviderError(auth.ErrInvalidCredentials, err, nil)
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return wrapProviderError(auth.ErrInvalidCredentials, err, nil)
	case "USER_DISABLED":
		return wrapProviderError(auth.ErrAccountSuspended, err, nil)
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return wrapProviderError(auth.ErrInvalidInput, err, map[string]any{
			"fields": map[string]string{"email": "must be a valid email address"},
		})
	case "WEAK_PASSWORD", "MISSING_PASSWORD":
		msg := perr.Description
		if msg == "" {
			msg = "the length must be at least 6"
		}
		return wrapProviderError(auth.ErrInvalidInput, err, map[string]any{
			"fields": map[string]string{"password": msg},
		})
	case "TOKEN_EXPIRED", "USER_NOT_FOUND", "INVALID_REFRESH_TOKEN", "INVALID_ID_TOKEN", "CREDENTIAL_TOO_OLD_LOGIN_AGAIN":
		return wrapProviderError(auth.ErrUnauthorized, err, nil)
	default:
		return wrapProviderError(auth.ErrProviderUnavailable, err, nil)
	}
}

func wrapProviderError(base *goerrors.Error, err error, extra map[string]any) error {
	meta := map[string]any{}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		for k, v := range perr.Metadata() {
			meta[k] = v
		}
	} else if err != nil {
		meta["provider"] = providerName
		meta["error"] = err.Error()
	}
	for k, v := range extra {
		meta[k] = v
	}

	return auth.NewError(base, err, meta)
}
