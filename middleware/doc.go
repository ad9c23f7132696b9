// Package middleware provides net/http middleware that resolves a bearer
// credential to its otpgate account.
//
// Both "Bearer <token>" and "Token <token>" authorization schemes are
// accepted. On success the resolved account is stored in the request context
// and can be read with AccountFromContext.
package middleware
