// Package stores provides the Redis-backed persistence for registration
// state: pending registrations, the per-email OTP log, accounts and
// credentials.
//
// # Design
//
// Records are versioned, binary-encoded values. Pending registrations and OTP
// logs carry an optional retention TTL so abandoned signups expire on their
// own. Conditional writes (account create-if-absent, credential
// get-or-create) run as Lua scripts so the check and the write are one atomic
// step on the server; no WATCH retry loop is needed.
//
// # Key layout
//
//	<prefix>:pending:<email>        pending registration record
//	<prefix>:otp:<email>            list of OTP entries, insertion ordered
//	<prefix>:acct:email:<email>     account record
//	<prefix>:acct:id:<id>           email of account id
//	<prefix>:cred:acct:<id>         credential record
//	<prefix>:cred:tok:<sha256>      account id owning the token
//
// # What this package must NOT do
//
//   - Import otpgate (the root package adapts these types).
//   - Put plaintext tokens into key names.
//   - Decide on code validity or expiry; it only orders and returns records.
package stores
