// Package integration contains the marketplace-side domain model: the
// entities tracked across reconciliation passes (customer orders and
// warehouse supplies), their external status pairs, the ports through which
// they are read from the marketplace, and the pure status-mapping rules that
// decide how a tracked entity must progress on the ledger side.
package integration
