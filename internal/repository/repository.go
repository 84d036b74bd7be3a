// Package repository owns data access.
//
// All table access goes through one crud.Engine built from the configured
// allowlist, so adding a table to the API is a configuration change.
package repository
