// Package auth provides credential handling for Smart Pot Core.
//
// It covers:
//   - Argon2id password hashing, with verification of legacy bcrypt hashes
//     and transparent upgrade via NeedsRehash
//   - HS256 JWT access tokens carrying sub, iat, exp and jti
//   - Opaque refresh tokens, stored as SHA-256 hashes and rotated within a
//     family; replaying a revoked member revokes the whole family
//   - User and refresh-token repositories written against database.DBTX so
//     they join the caller's unit of work
//
// Access-token validation never touches the database. Possession of a valid
// token is the only authorisation tier; ownership checks live with the data.
package auth
