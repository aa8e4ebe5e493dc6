package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	auth "github.com/photolog/photolog-auth"
)

// RequestIDHeader correlates client and backend logs.
const RequestIDHeader = "X-Request-ID"

// Config holds backend client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Credentials auth.CredentialSource
	Logger      auth.Logger
	// RequestID generates request ids, defaults to uuid v4.
	RequestID func() string
}

// Client talks to the PhotoLog backend API with the signed in user's bearer
// credential attached to every request.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials auth.CredentialSource
	logger      auth.Logger
	requestID   func() string
}

var (
	_ auth.AdminAPI        = (*Client)(nil)
	_ auth.VerificationAPI = (*Client)(nil)
)

// New creates a backend client.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	requestID := cfg.RequestID
	if requestID == nil {
		requestID = func() string { return uuid.NewString() }
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  client,
		credentials: cfg.Credentials,
		logger:      logger,
		requestID:   requestID,
	}
}

type listUsersResponse struct {
	Users []auth.AdminUserRecord `json:"users"`
	Total int                    `json:"total"`
}

// ListUsers fetches one page of managed accounts.
func (c *Client) ListUsers(ctx context.Context, page, pageSize int) (*auth.UserPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var resp listUsersResponse
	if err := c.do(ctx, "list_users", http.MethodGet, "/admin/users?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &auth.UserPage{Users: resp.Users, Total: resp.Total}, nil
}

// SetSuspended updates the suspension flag of userID.
func (c *Client) SetSuspended(ctx context.Context, userID string, suspended bool) error {
	payload := map[string]any{"isSuspended": suspended}
	return c.do(ctx, "set_suspended", http.MethodPatch, "/admin/users/"+url.PathEscape(userID), payload, nil)
}

// SendVerificationCode asks the backend to email a fresh six digit code.
func (c *Client) SendVerificationCode(ctx context.Context) error {
	return c.do(ctx, "send_verification_code", http.MethodPost, "/auth/verify-email/send", map[string]any{}, nil)
}

// VerifyEmailCode submits the code entered by the user.
func (c *Client) VerifyEmailCode(ctx context.Context, code string) error {
	return c.do(ctx, "verify_email_code", http.MethodPost, "/auth/verify-email/confirm", map[string]any{"code": code}, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return auth.NewError(auth.ErrInvalidInput, err, map[string]any{"operation": operation})
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return auth.NewError(auth.ErrProviderUnavailable, err, map[string]any{"operation": operation})
	}

	requestID := c.requestID()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.credentials != nil {
		cred, err := c.credentials.Credential(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+cred.IDToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.Warn("%s %s failed request_id=%s: %v", method, path, requestID, err)
		return auth.NewError(auth.ErrProviderUnavailable, err, map[string]any{
			"operation":  operation,
			"request_id": requestID,
		})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.NewError(auth.ErrProviderUnavailable, err, map[string]any{
			"operation":  operation,
			"request_id": requestID,
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%s %s status=%d request_id=%s", method, path, resp.StatusCode, requestID)
		return statusError(operation, requestID, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return auth.NewError(auth.ErrProviderUnavailable, err, map[string]any{
			"operation":  operation,
			"request_id": requestID,
			"reason":     "invalid response body",
		})
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusError(operation, requestID string, status int, data []byte) error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	message := eb.Message
	if message == "" {
		message = eb.Error
	}

	meta := map[string]any{
		"operation":  operation,
		"request_id": requestID,
		"status":     status,
	}
	if message != "" {
		meta["message"] = message
	}

	var base *goerrors.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		base = auth.ErrUnauthorized
	case status == http.StatusNotFound:
		base = auth.ErrNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		base = auth.ErrInvalidInput
		field := "form"
		if operation == "verify_email_code" {
			field = "code"
		}
		if message == "" {
			message = "is invalid"
		}
		meta["fields"] = map[string]string{field: message}
	case status == http.StatusTooManyRequests:
		base = auth.ErrCooldownActive
	default:
		base = auth.ErrProviderUnavailable
	}

	return auth.NewError(base, fmt.Errorf("backend %s: status %d", operation, status), meta)
}
