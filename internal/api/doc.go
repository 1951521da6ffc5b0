// Package api exposes the task service over HTTP. It owns routing, request
// decoding and the mapping from unified error codes to status codes, plus the
// middleware chain (request ids, access logs, metrics, panic recovery, CORS).
package api
