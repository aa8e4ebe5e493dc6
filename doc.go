// Package auth provides the client side identity core of PhotoLog: an
// adapter over a remote identity provider, a process wide session store,
// a role based route guard, the email verification code flow and the admin
// user directory.
//
// Session lifecycle:
//   - SessionStore starts resolving and flips to resolved exactly once, on
//     the first auth state delivered by IdentityAdapter. Route decisions made
//     while resolving are Pending and never redirect, so a returning user
//     holding a persisted credential is not bounced to the sign in view.
//   - IdentityAdapter.SubscribeAuthState is the only writer of the store.
//     Bind the store once at startup and Close it on shutdown.
//
// Route guard:
//   - RouteGuard reads the store on every evaluation. Unauthenticated users
//     are sent to the sign in view of the required role with a next
//     parameter, users holding the wrong role go to their own landing view.
//
// Account lifecycle:
//   - AccountStateMachine moves managed accounts between active and
//     suspended through the AdminAPI. AdminDirectory drives it with a
//     confirmation hook and refetches the page after every change.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by IdentityAdapter,
//     VerificationFlow and the state machine. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without blocking
//     authentication.
package auth
