package auth

import (
	"net/url"
	"strings"
)

// Routing surface of the app shell.
const (
	PathHome           = "/"
	PathSignIn         = "/signin"
	PathSignUp         = "/signup"
	PathVerifyEmail    = "/verify-email"
	PathForgotPassword = "/forgot-password"
	PathEvent          = "/event/:id"
	PathDashboard      = "/dashboard"
	PathCreateEvent    = "/create-event"
	PathHostEvent      = "/host/event/:id"
	PathAdminLogin     = "/admin/login"
	PathAdminDashboard = "/admin/dashboard"
	PathAdminUsers     = "/admin/users"
)

// NextParam is the query parameter carrying the path to resume after sign in.
const NextParam = "next"

// Route binds a path pattern to the role required to enter it.
type Route struct {
	Name    string
	Pattern string
	Role    UserRole
}

// Routes is the default routing table.
var Routes = []Route{
	{Name: "home", Pattern: PathHome, Role: RoleGuest},
	{Name: "signin", Pattern: PathSignIn, Role: RoleGuest},
	{Name: "signup", Pattern: PathSignUp, Role: RoleGuest},
	{Name: "verify_email", Pattern: PathVerifyEmail, Role: RoleGuest},
	{Name: "forgot_password", Pattern: PathForgotPassword, Role: RoleGuest},
	{Name: "event", Pattern: PathEvent, Role: RoleGuest},
	{Name: "dashboard", Pattern: PathDashboard, Role: RoleHost},
	{Name: "create_event", Pattern: PathCreateEvent, Role: RoleHost},
	{Name: "host_event", Pattern: PathHostEvent, Role: RoleHost},
	{Name: "admin_login", Pattern: PathAdminLogin, Role: RoleGuest},
	{Name: "admin_dashboard", Pattern: PathAdminDashboard, Role: RoleAdmin},
	{Name: "admin_users", Pattern: PathAdminUsers, Role: RoleAdmin},
}

// DecisionKind is the outcome class of a guard evaluation.
type DecisionKind int

const (
	// DecisionPending the session is still resolving, render a neutral loading view.
	DecisionPending DecisionKind = iota
	// DecisionAllow render the requested view.
	DecisionAllow
	// DecisionRedirect navigate to Decision.Target instead.
	DecisionRedirect
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionPending:
		return "pending"
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of a single guard evaluation.
type Decision struct {
	Kind   DecisionKind
	Target string
}

func (d Decision) Pending() bool  { return d.Kind == DecisionPending }
func (d Decision) Allowed() bool  { return d.Kind == DecisionAllow }
func (d Decision) Redirect() bool { return d.Kind == DecisionRedirect }

// RouteGuard decides whether the current session may enter a view. Decisions
// are never cached, each call reads the session store.
type RouteGuard struct {
	store  *SessionStore
	routes []Route
	logger Logger
}

// RouteGuardOption configures a RouteGuard.
type RouteGuardOption func(*RouteGuard)

// WithGuardRoutes replaces the default routing table.
func WithGuardRoutes(routes []Route) RouteGuardOption {
	return func(g *RouteGuard) {
		if len(routes) > 0 {
			g.routes = routes
		}
	}
}

// WithGuardLogger sets the guard logger.
func WithGuardLogger(logger Logger) RouteGuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRouteGuard returns a guard reading from store.
func NewRouteGuard(store *SessionStore, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		store:  store,
		routes: Routes,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// CanEnter evaluates a view that requires the given role.
func (g *RouteGuard) CanEnter(required UserRole, requestedPath string) Decision {
	return decide(g.store.Snapshot(), required, requestedPath)
}

// Evaluate looks up the role required by path and evaluates it.
func (g *RouteGuard) Evaluate(requestedPath string) Decision {
	required, _ := g.RequiredRole(requestedPath)
	return g.CanEnter(required, requestedPath)
}

// Watch re-evaluates requestedPath on every session change and hands the
// decision to fn. The returned cancel func stops the re-evaluation.
func (g *RouteGuard) Watch(requestedPath string, fn func(Decision)) (cancel func()) {
	required, _ := g.RequiredRole(requestedPath)
	return g.store.Watch(func(snapshot SessionSnapshot) {
		fn(decide(snapshot, required, requestedPath))
	})
}

func decide(snapshot SessionSnapshot, required UserRole, requestedPath string) Decision {
	if snapshot.Resolving {
		return Decision{Kind: DecisionPending}
	}

	if required == RoleGuest || required == "" {
		return Decision{Kind: DecisionAllow}
	}

	if snapshot.User == nil {
		return Decision{
			Kind:   DecisionRedirect,
			Target: SignInRedirect(required, requestedPath),
		}
	}

	if snapshot.User.Role.Satisfies(required) {
		return Decision{Kind: DecisionAllow}
	}

	return Decision{Kind: DecisionRedirect, Target: snapshot.User.Role.LandingPath()}
}

// SignInRedirect builds the sign in target for required, preserving the
// requested path so it can be resumed.
func SignInRedirect(required UserRole, requestedPath string) string {
	target := required.SignInPath()
	if requestedPath == "" {
		return target
	}
	q := url.Values{}
	q.Set(NextParam, requestedPath)
	return target + "?" + q.Encode()
}

// RequiredRole returns the role required by the first route matching path.
// Unknown paths report false and require no role.
func (g *RouteGuard) RequiredRole(requestedPath string) (UserRole, bool) {
	p := requestedPath
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	for _, r := range g.routes {
		if matchPattern(r.Pattern, p) {
			return r.Role, true
		}
	}
	return RoleGuest, false
}

// ResumePath returns where to go after a successful sign in. next is only
// honored when it is a same origin absolute path the role may enter.
func (g *RouteGuard) ResumePath(next string, role UserRole) string {
	landing := role.LandingPath()
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return landing
	}

	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return landing
	}

	required, ok := g.RequiredRole(u.Path)
	if !ok || !role.Satisfies(required) {
		return landing
	}
	switch u.Path {
	case PathSignIn, PathSignUp, PathAdminLogin:
		return landing
	}
	return next
}

func matchPattern(pattern, requestedPath string) bool {
	if pattern == requestedPath {
		return true
	}

	pp := splitPath(pattern)
	rp := splitPath(requestedPath)
	if len(pp) != len(rp) {
		return false
	}
	for i, seg := range pp {
		if strings.HasPrefix(seg, ":") {
			if rp[i] == "" {
				return false
			}
			continue
		}
		if seg != rp[i] {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
