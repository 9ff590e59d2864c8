// Package config loads the agentbindd configuration file and fills in the
// defaults for fields the operator leaves unset.
package config
