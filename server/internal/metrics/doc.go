// Package metrics exposes registry counters in the Prometheus text format.
//
// Registry counts accepted events per transport and status lookups per
// result. Handler renders those counters together with gauges read from the
// device store at scrape time (known devices, online devices, staleness
// threshold). Families are built directly as client_model protobufs and
// written with expfmt; no client_golang registry is involved.
package metrics
