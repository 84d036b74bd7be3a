// Package service holds the logic between the handlers and the
// repositories: logging each CRUD call and publishing the writes.
package service
