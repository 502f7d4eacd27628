// Package observability provides structured logging, the JSONL event log,
// metrics derived from it, and alerting for tinker. Metrics and alerts are
// computed on demand from the event log.
package observability
