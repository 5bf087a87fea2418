/*
Package observability turns runtime lifecycle hooks into Prometheus metrics and structured logs.

Hooks built here are plain domain.LifecycleHooks values; combine them with Chain and pass the
result to the runtime and to the API invoker.
*/
package observability
