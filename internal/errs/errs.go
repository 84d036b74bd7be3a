// Package errs defines the error shapes the API returns to clients.
//
// Every failure leaves the server as an HTTPError serialized to JSON, with
// a machine-readable code, a message, the status and optional field-level
// errors, so a frontend can react without parsing text.
package errs
