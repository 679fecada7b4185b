// Package http exposes strongbox over HTTP.
//
// Owner routes require a bearer token verified by an Authenticator; the
// caller's username scopes every bucket and object operation. The presigned
// route needs no session: the capability in its query string is the only
// authorisation, and it is verified before anything else is looked up.
//
// # Routes
//
//	GET    /buckets
//	PUT    /buckets/{bucket}
//	DELETE /buckets/{bucket}?cascade=true
//	GET    /buckets/{bucket}/objects
//	GET    /objects
//	PUT    /buckets/{bucket}/objects/{key}
//	GET    /buckets/{bucket}/objects/{key}
//	HEAD   /buckets/{bucket}/objects/{key}
//	DELETE /buckets/{bucket}/objects/{key}
//	POST   /buckets/{bucket}/objects/{key}/presign?expires_minutes=N
//	GET    /presigned/{bucket}/{key}?access_key_id=...&signature=...
//	GET    /healthz
//	GET    /metrics
//
// # Errors
//
// Failures are JSON bodies of the form {"error": code, "message": text}.
// Every capability failure is reported as 403 access_denied so a bearer
// cannot tell an expired link from a forged one. Persistence and storage
// failures are reported as 500 internal_error without detail.
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    Authenticator: jwtAuth,
//	    Health:        db,
//	    Metrics:       metrics.New(),
//	}, service)
//	srv := &nethttp.Server{Addr: ":8080", Handler: handler.Router()}
package http
