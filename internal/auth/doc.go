// Package auth provides session credential handling for the chat gateway.
// Credentials are HS256 JWTs whose "sub" claim carries the user ID; every
// REST and socket operation requires one.
package auth
