// Package registry defines the narrow token ownership contract the
// association layer consumes: owner lookup, per-token approval lookup, and
// collection-wide operator checks. It ships an in-memory implementation for
// tests and local deployments plus the chain definition loader used to
// configure on-chain clients.
package registry
