// Package httputil provides the JSON response envelope used by every
// newsletter API handler: {success, message|data} on 2xx, {error} on 4xx/5xx.
// Internal errors are logged in full but never leaked to the client.
package httputil
