// Package auth is the account and session core of the job board: the
// credential store, password hashing, the failed login lockout, session
// tokens and the HTTP gateway that guards the API.
//
// Accounts:
//   - Accounts are persisted via go-repository-bun over Bun. Email and phone are encrypted at rest
//     and looked up through a keyed blind index, so an email is unique no
//     matter how it was cased when registered.
//   - Job Seekers are active on registration. Employers start inactive and
//     an Admin has to activate them. Admins are seeded from configuration.
//
// Lockout:
//   - LockoutStateMachine locks an account for LockoutDuration once it
//     reaches MaxFailedLoginAttempts failures. Counter updates are single
//     conditional writes, so concurrent logins cannot slip past a lock.
//   - Expiry is lazy. A stale lock is treated as unlocked the next time the
//     account signs in, and the write that clears it reports the unlock.
//
// Sessions:
//   - TokenService signs HS256 tokens carrying the account id and role.
//     RouteAuthenticator reads them from the session cookie or a Bearer
//     header and reloads the account, so role and activation changes apply
//     to tokens issued before them.
//
// Activity sinks:
//   - ActivitySink receives login, lockout, registration and admin events.
//     Sinks run best-effort (errors are logged) so a slow audit store never
//     fails a request.
package auth
