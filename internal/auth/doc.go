// Package auth issues and verifies the API keys that protect the HTTP
// surface.
//
// Keys are random 256-bit values shown to the operator exactly once at
// creation; only a SHA-256 digest is stored. Verification hashes the
// presented key and looks the digest up, so a database leak never
// exposes usable credentials.
package auth
