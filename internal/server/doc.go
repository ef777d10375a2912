// Package server serves the calpane web UI.
//
// Every action is a form POST that runs one Adapter operation and answers
// with a 303 redirect to "/", which renders the current View. A success
// notice adds a meta refresh so the page reloads once the notice expires.
//
// Health endpoints (/healthz, /readyz) live on the UI server; Prometheus
// metrics are served separately by MetricsServer.
package server
