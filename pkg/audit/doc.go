// Package audit records the append-only history of permission changes.
//
// Every override update and template reset writes one Entry holding the
// before and after override snapshots, the keys that changed (or the
// RESET_ALL marker) and the acting identity. Entries are read back newest
// first for compliance review and troubleshooting; they are never consulted
// for authorization decisions.
//
// Destinations:
//
//	DBLogger    - permission_audit_log table (PostgreSQL or SQLite)
//	FileLogger  - JSON lines with size-based rotation
//	MultiLogger - fan-out to several destinations
package audit
