// Package resilience provides the optional gates an httpkit client can put
// in front of its work:
//
//   - Breakers: one circuit breaker per key (the client keys by authority)
//     that fails fast after repeated connect failures
//   - RateLimiter: a client-wide token bucket awaited before each request
//   - Bulkhead: a FIFO concurrency bound, used for the I/O worker pool
//
// None of these retry. A rejected call is reported to the caller.
package resilience
