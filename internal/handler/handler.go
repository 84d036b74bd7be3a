// Package handler is the HTTP layer. Handlers bind and validate requests
// with the validation package, call the services and shape the JSON
// responses.
package handler
