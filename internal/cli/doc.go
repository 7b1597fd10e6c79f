// Package cli wires the prguard commands: run, checks, config, version.
package cli
