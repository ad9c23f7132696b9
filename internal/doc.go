// Package internal contains helper utilities that are intentionally private to otpgate,
// including secure random generation for codes and credential tokens.
//
// # Sub-packages
//
//   - stores: Redis persistence for pending registrations, codes, accounts and credentials
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpgate API.
//   - Be imported by any package outside the otpgate module.
package internal
