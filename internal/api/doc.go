// Package api hosts the HTTP handlers that front the vidhub REST API.
//
// Handler translates requests into calls on the video lifecycle service and
// the channel aggregator, and shapes every response into the
// {success, data, message} envelope. Failures are rendered through
// writeError, which maps apperr kinds to HTTP statuses and never exposes
// internal causes.
//
// Dependencies are injected through Config. Handlers assume upstream
// middleware from internal/server has already run request id assignment,
// logging, metrics, CORS, rate limiting and authentication; protected
// handlers still resolve the caller themselves when invoked directly.
package api
