// Package redis provides Redis-backed adapters: a session state store, a distributed
// session lock, and an outbound API rate limiter shared by every replica.
package redis
