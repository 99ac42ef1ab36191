// Package observability records taskflow workflow events as JSON Lines and
// derives metrics and alerts from them on demand. Alerts can be pushed to a
// Slack webhook after scheduled runs.
package observability
