// Package ingress accepts transaction submissions over HTTP.
//
// Routes:
//
//	POST /v1/transactions       submit a batch (hex-encoded payloads)
//	GET  /v1/transactions/{id}  status query
//	GET  /v1/stats              record counts by status
//	GET  /healthz               liveness and store reachability
//
// A batch is written through Submitter.Create as one unit: either every
// record is stored or none is. After a successful write the dispatch
// pipeline is woken so new work does not wait for the next poll.
package ingress
