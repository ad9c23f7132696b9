// Package otpgate provides email-based account registration guarded by
// one-time codes, plus password login that returns a durable bearer
// credential.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Flow
//
//	Signup  -> pending registration stored, 6-digit code sent
//	Resend  -> another code sent for the same pending registration
//	Verify  -> latest code checked, account created once, credential returned
//	Login   -> password checked, the account's single credential returned
//
// # Architecture boundaries
//
// otpgate is the public surface. It exposes [Engine], [Builder], [Config],
// the store interfaces and the value types. The Redis encoding of records
// lives under internal/stores and is never exported. SQL persistence lives in
// storage/sqlstore, HTTP transport in httpapi.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Accept any code other than the most recently issued one for an email.
//   - Import any sub-package that re-imports otpgate (no import cycles).
package otpgate
