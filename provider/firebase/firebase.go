package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/photolog/photolog-auth"
)

const (
	defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	defaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
	defaultRefreshSkew        = 5 * time.Minute
)

const (
	opSignUp        = "signup"
	opSignIn        = "signin"
	opPasswordReset = "password_reset"
	opVerifyEmail   = "verify_email"
	opLookup        = "lookup"
	opRefresh       = "refresh"
)

// Config holds the Firebase web app configuration.
type Config struct {
	APIKey     string
	AuthDomain string
	ProjectID  string

	IdentityToolkitURL string
	SecureTokenURL     string

	HTTPClient *http.Client
	// Store keeps the credential across runs when persistence is local.
	Store  auth.CredentialStore
	Logger auth.Logger
	Now    func() time.Time
	// RefreshSkew refreshes the ID token this long before it expires.
	RefreshSkew time.Duration
}

// Provider implements auth.IdentityProvider over the Identity Toolkit and
// Secure Token REST APIs. Auth state changes are delivered to listeners by a
// single dispatcher goroutine, in the order they happened.
type Provider struct {
	config     Config
	httpClient *http.Client
	logger     auth.Logger
	now        func() time.Time

	mu          sync.Mutex
	persistence auth.Persistence
	cred        *auth.Credential
	user        *auth.User
	restored    bool
	listeners   []listener
	nextID      int
	queue       []stateEvent

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ auth.IdentityProvider = (*Provider)(nil)

type listener struct {
	id int
	fn auth.AuthStateListener
}

// stateEvent is a queued delivery. target 0 means every listener.
type stateEvent struct {
	user   *auth.User
	target int
}

// New creates a provider and starts its dispatcher. Call Close to stop it.
func New(cfg Config) *Provider {
	if cfg.IdentityToolkitURL == "" {
		cfg.IdentityToolkitURL = defaultIdentityToolkitURL
	}
	if cfg.SecureTokenURL == "" {
		cfg.SecureTokenURL = defaultSecureTokenURL
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = defaultRefreshSkew
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	p := &Provider{
		config:      cfg,
		httpClient:  client,
		logger:      logger,
		now:         now,
		persistence: auth.PersistenceMemory,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Close stops the dispatcher. Pending deliveries are dropped.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// SetPersistence selects where the credential is kept. Local persistence
// requires a configured Store.
func (p *Provider) SetPersistence(ctx context.Context, mode auth.Persistence) error {
	switch mode {
	case auth.PersistenceLocal:
		if p.config.Store == nil {
			return goerrors.New("no durable credential store configured", goerrors.CategoryInternal).
				WithCode(goerrors.CodeInternal).
				WithMetadata(map[string]any{"persistence": mode})
		}
	case auth.PersistenceMemory:
	default:
		return auth.NewError(auth.ErrInvalidInput, nil, map[string]any{"persistence": mode})
	}

	p.mu.Lock()
	p.persistence = mode
	p.mu.Unlock()
	return nil
}

// Restore loads a persisted credential, refreshes it if needed and emits the
// initial auth state. Exactly one state is emitted whatever the outcome.
func (p *Provider) Restore(ctx context.Context) error {
	p.mu.Lock()
	cred := cloneCredential(p.cred)
	local := p.persistence == auth.PersistenceLocal && p.config.Store != nil
	p.mu.Unlock()

	if cred == nil && local {
		stored, err := p.config.Store.LoadCredential(ctx)
		if err != nil {
			// the stored credential may still be good, only the read failed
			p.logger.Error("failed to load stored credential: %v", err)
			p.publish(nil, nil)
			return err
		}
		cred = stored
	}

	if cred == nil || cred.IDToken == "" {
		p.setSession(ctx, nil, nil)
		return nil
	}

	if p.expiring(cred) {
		refreshed, err := p.refresh(ctx, cred.RefreshToken)
		if err != nil {
			if auth.IsError(err, auth.ErrUnauthorized) {
				p.logger.Info("stored credential no longer valid, signing out")
				p.setSession(ctx, nil, nil)
				return err
			}
			// offline: keep the stored identity, the next call refreshes
			p.logger.Warn("failed to refresh stored credential: %v", err)
			if user, uerr := UserFromIDToken(cred.IDToken); uerr == nil {
				p.setSession(ctx, cred, user)
			} else {
				p.setSession(ctx, nil, nil)
			}
			return err
		}
		cred = refreshed
	}

	user, err := UserFromIDToken(cred.IDToken)
	if err != nil {
		p.logger.Error("stored credential is malformed: %v", err)
		p.setSession(ctx, nil, nil)
		return err
	}

	p.setSession(ctx, cred, user)
	return nil
}

// SignUp creates an account with email and password and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*auth.Credential, error) {
	return p.passwordAuth(ctx, opSignUp, "accounts:signUp", email, password)
}

// SignIn signs in with email and password.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*auth.Credential, error) {
	return p.passwordAuth(ctx, opSignIn, "accounts:signInWithPassword", email, password)
}

func (p *Provider) passwordAuth(ctx context.Context, operation, method, email, password string) (*auth.Credential, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var resp signInResponse
	if err := p.postJSON(ctx, operation, p.toolkitURL(method), payload, &resp); err != nil {
		return nil, classify(operation, err)
	}

	cred := p.credential(resp.LocalID, resp.IDToken, resp.RefreshToken, resp.ExpiresIn)
	user, err := UserFromIDToken(cred.IDToken)
	if err != nil {
		return nil, classify(operation, &ProviderError{
			Operation:   operation,
			Description: "malformed id token",
			Err:         err,
		})
	}
	if user.ID == "" {
		user.ID = resp.LocalID
	}
	if user.Email == "" {
		user.Email = resp.Email
	}
	if user.DisplayName == "" {
		user.DisplayName = resp.DisplayName
	}

	p.setSession(ctx, cred, user)
	return cloneCredential(cred), nil
}

// SignOut forgets the credential locally and emits a signed out state even
// when the stored copy cannot be removed.
func (p *Provider) SignOut(ctx context.Context) error {
	return p.setSession(ctx, nil, nil)
}

// SendPasswordResetEmail asks Firebase to email a reset link to email.
func (p *Provider) SendPasswordResetEmail(ctx context.Context, email string) error {
	payload := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}
	if err := p.postJSON(ctx, opPasswordReset, p.toolkitURL("accounts:sendOobCode"), payload, nil); err != nil {
		return classify(opPasswordReset, err)
	}
	return nil
}

// SendEmailVerification asks Firebase to email a verification link to the
// signed in user.
func (p *Provider) SendEmailVerification(ctx context.Context) error {
	cred, err := p.CurrentCredential(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return auth.NewError(auth.ErrUnauthorized, nil, map[string]any{"operation": opVerifyEmail})
	}

	payload := map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     cred.IDToken,
	}
	if err := p.postJSON(ctx, opVerifyEmail, p.toolkitURL("accounts:sendOobCode"), payload, nil); err != nil {
		return classify(opVerifyEmail, err)
	}
	return nil
}

// CurrentCredential returns the credential of the signed in user, refreshing
// it when it is about to expire. It returns nil, nil when signed out.
func (p *Provider) CurrentCredential(ctx context.Context) (*auth.Credential, error) {
	p.mu.Lock()
	cred := cloneCredential(p.cred)
	p.mu.Unlock()

	if cred == nil {
		return nil, nil
	}
	if !p.expiring(cred) {
		return cred, nil
	}

	refreshed, err := p.refresh(ctx, cred.RefreshToken)
	if err != nil {
		if auth.IsError(err, auth.ErrUnauthorized) {
			p.setSession(ctx, nil, nil)
		}
		return nil, err
	}

	user, err := UserFromIDToken(refreshed.IDToken)
	if err != nil {
		return nil, classify(opRefresh, err)
	}
	p.setSession(ctx, refreshed, user)
	return cloneCredential(refreshed), nil
}

// Reload fetches the account record and re-emits the auth state, i.e. to
// pick up a verified email.
func (p *Provider) Reload(ctx context.Context) error {
	cred, err := p.CurrentCredential(ctx)
	if err != nil {
		return err
	}
	if cred == nil {
		return auth.NewError(auth.ErrUnauthorized, nil, map[string]any{"operation": opLookup})
	}

	var resp lookupResponse
	if err := p.postJSON(ctx, opLookup, p.toolkitURL("accounts:lookup"), map[string]any{"idToken": cred.IDToken}, &resp); err != nil {
		return classify(opLookup, err)
	}
	if len(resp.Users) == 0 {
		p.setSession(ctx, nil, nil)
		return auth.NewError(auth.ErrUnauthorized, nil, map[string]any{"operation": opLookup, "reason": "account not found"})
	}

	account := resp.Users[0]
	if account.Disabled {
		p.setSession(ctx, nil, nil)
		return auth.NewError(auth.ErrAccountSuspended, nil, map[string]any{"user_id": account.LocalID})
	}

	p.mu.Lock()
	user := p.user.Clone()
	p.mu.Unlock()
	if user == nil {
		return nil
	}

	user.Email = account.Email
	user.EmailVerified = account.EmailVerified
	if account.DisplayName != "" {
		user.DisplayName = account.DisplayName
	}
	p.setSession(ctx, cred, user)
	return nil
}

// OnAuthStateChanged registers fn. When the initial state is already known
// it is delivered to fn right away, through the dispatcher.
func (p *Provider) OnAuthStateChanged(fn auth.AuthStateListener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	if p.restored {
		p.enqueueLocked(stateEvent{user: p.user.Clone(), target: id})
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, l := range p.listeners {
				if l.id == id {
					p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

func (p *Provider) refresh(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	if refreshToken == "" {
		return nil, auth.NewError(auth.ErrUnauthorized, nil, map[string]any{
			"operation": opRefresh,
			"reason":    "missing refresh token",
		})
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := fmt.Sprintf("%s/token?key=%s", strings.TrimRight(p.config.SecureTokenURL, "/"), url.QueryEscape(p.config.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, classify(opRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := p.do(req, opRefresh, &resp); err != nil {
		return nil, classify(opRefresh, err)
	}

	next := resp.RefreshToken
	if next == "" {
		next = refreshToken
	}
	return p.credential(resp.UserID, resp.IDToken, next, resp.ExpiresIn), nil
}

func (p *Provider) postJSON(ctx context.Context, operation, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &ProviderError{Operation: operation, Description: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, operation, out)
}

func (p *Provider) do(req *http.Request, operation string, out any) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Operation: operation, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		code, desc := splitMessage(apiErr.Error.Message)
		if code == "" {
			desc = strings.TrimSpace(string(body))
		}
		return &ProviderError{
			Operation:   operation,
			Status:      resp.StatusCode,
			Code:        code,
			Description: desc,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{
			Operation:   operation,
			Status:      resp.StatusCode,
			Description: "failed to decode response",
			Err:         err,
		}
	}
	return nil
}

// setSession publishes the new session and mirrors it to the durable store
// when persistence is local.
func (p *Provider) setSession(ctx context.Context, cred *auth.Credential, user *auth.User) error {
	if !p.publish(cred, user) {
		return nil
	}

	var err error
	if cred == nil {
		err = p.config.Store.DeleteCredential(ctx)
	} else {
		err = p.config.Store.SaveCredential(ctx, cred)
	}
	if err != nil {
		p.logger.Error("failed to persist credential: %v", err)
	}
	return err
}

// publish replaces the in-memory session and queues the new state for
// listeners. The durable store is left alone. It reports whether the
// session is backed by the store.
func (p *Provider) publish(cred *auth.Credential, user *auth.User) (local bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cred = cloneCredential(cred)
	p.user = user.Clone()
	p.restored = true
	p.enqueueLocked(stateEvent{user: user.Clone()})
	return p.persistence == auth.PersistenceLocal && p.config.Store != nil
}

func (p *Provider) enqueueLocked(ev stateEvent) {
	p.queue = append(p.queue, ev)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Provider) dispatch() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}

		for {
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			ev := p.queue[0]
			p.queue = p.queue[1:]
			listeners := make([]listener, len(p.listeners))
			copy(listeners, p.listeners)
			p.mu.Unlock()

			for _, l := range listeners {
				if ev.target == 0 || ev.target == l.id {
					l.fn(ev.user.Clone())
				}
			}
		}
	}
}

func (p *Provider) expiring(cred *auth.Credential) bool {
	if cred.ExpiresAt.IsZero() {
		return false
	}
	return cred.Expired(p.now().Add(p.config.RefreshSkew))
}

func (p *Provider) credential(userID, idToken, refreshToken, expiresIn string) *auth.Credential {
	cred := &auth.Credential{
		UserID:       userID,
		IDToken:      idToken,
		RefreshToken: refreshToken,
	}
	if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
		cred.ExpiresAt = p.now().Add(time.Duration(secs) * time.Second)
	} else {
		cred.ExpiresAt = expiryFromToken(idToken)
	}
	if cred.UserID == "" {
		if claims, err := ParseIDToken(idToken); err == nil {
			cred.UserID = claims.UID()
		}
	}
	return cred
}

func (p *Provider) toolkitURL(method string) string {
	return fmt.Sprintf("%s/%s?key=%s", strings.TrimRight(p.config.IdentityToolkitURL, "/"), method, url.QueryEscape(p.config.APIKey))
}

func cloneCredential(c *auth.Credential) *auth.Credential {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
		DisplayName   string `json:"displayName"`
		Disabled      bool   `json:"disabled"`
	} `json:"users"`
}
