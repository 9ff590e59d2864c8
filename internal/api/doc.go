// Package api exposes the association service over REST: public reads of
// the per-token agent and prompt fields, signature-authenticated writes
// routed through the authorization gate, and the health, stats, and metrics
// endpoints.
package api
