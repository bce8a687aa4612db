// ABOUTME: Package documentation for authentication and accounts
// ABOUTME: Describes sessions, tokens, and identity propagation

// Package auth handles accounts, browser sessions, and API tokens.
//
// Browsers authenticate with an opaque session cookie backed by the store;
// programmatic clients use HS256 JWTs minted by IssueToken. The middleware
// accepts either and attaches an Identity to the request context, which
// handlers read via FromContext to scope every store call to the owner.
//
// Login timing does not distinguish unknown emails from wrong passwords: a
// dummy bcrypt comparison runs when the account does not exist.
package auth
