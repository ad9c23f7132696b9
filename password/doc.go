// Package password hashes and verifies account passwords.
//
// # Output format
//
// [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] produces standard $2a$/$2b$ strings. [Chain] hashes with one
// scheme and verifies against any scheme whose prefix matches, so accounts
// imported with bcrypt hashes keep working after the switch to Argon2id.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the registration coordinator before Hash is called.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other otpgate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
