/*
Package session serializes conversation turns per user.

A Manager wraps a ports.StateStore: every read-modify-write of one session runs under
a local mutex and, when a ports.DistributedLocker is configured, a distributed lock, so
that concurrent requests for the same user see each other's state.
*/
package session
