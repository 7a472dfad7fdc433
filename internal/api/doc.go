// Package api exposes the newsletter subscription core over HTTP. Handlers
// translate the JSON surface into service calls and never leak internal
// error details in production.
package api
