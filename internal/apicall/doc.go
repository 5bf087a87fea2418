// Package apicall performs the outbound HTTP calls of api nodes.
//
// Every call is checked against a SecurityPolicy before it is made: the URL must parse,
// the hostname must not be localhost or blocklisted, and every address it resolves to
// must lie outside the prohibited ranges (private networks, loopback, the cloud
// metadata endpoint). The same policy is enforced again when the connection is dialed
// and on every redirect, so a hostname cannot be rebound to an internal address
// between validation and use.
//
// Usage is counted per hostname through a ports.RateLimiter. A throttled call is
// delayed, never dropped. Non-2xx responses are data: the status code and headers
// are injected into object bodies as VF_STATUS_CODE and VF_HEADERS and the node's
// mappings are resolved against {response: body}.
package apicall
