// Package server hosts the vidhub API from a single HTTP server.
//
// The server builds one middleware chain of request ids, request logging,
// metrics, security headers, CORS, rate limiting and authentication so every
// handler shares the same protections and instrumentation. When the media
// backend is the local filesystem it also serves stored assets under /media/.
package server
