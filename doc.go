// Package identity is the account and credential-lifecycle core of a
// multi-tenant platform: registration for individual and organization
// accounts, email verification, admin-driven invites, password recovery, and
// session issuance with refresh rotation.
//
// Token engine:
//   - Four single-purpose secret tokens (email verification, password reset,
//     refresh, password setup) share one engine parameterized by kind. Raw
//     secrets carry 256 bits of entropy, only their sha256 digest is stored,
//     and consumption is an atomic conditional delete so a secret can be spent
//     exactly once even under concurrent attempts.
//
// Account lifecycle:
//   - Accounts are created Pending (unverified, inactive) together with their
//     profile in one transaction. Exactly one transition makes them usable:
//     consuming a verification token (individuals) or claiming a setup token
//     with a new password (organization invites). Administrative deactivation
//     blocks both login and refresh.
//
// Sessions:
//   - A session is a signed stateless access token plus an opaque stored
//     refresh token. Refresh consumes the old token and issues a new pair, so
//     replaying a rotated token fails and doubles as a theft signal.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter fed by every registration,
//     activation, login, refresh, and password operation. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package identity
