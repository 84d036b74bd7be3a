// Package middleware holds the Echo middleware: request ids, the request
// logger, New Relic tracing, Clerk auth, rate limiting and the global
// error handler.
package middleware
