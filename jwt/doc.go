// Package jwt issues signed credential tokens. A token names its account in
// the sub claim and carries a random jti so that two tokens for the same
// account never collide. Tokens have no exp: a credential lives as long as
// its stored record.
//
// The credential store remains the source of truth. Signature verification
// only lets callers reject forged tokens before a store lookup.
package jwt
