// Package lib holds supporting pieces that sit beside the request path:
// the background job worker (job) and the live update hub (hub).
package lib
