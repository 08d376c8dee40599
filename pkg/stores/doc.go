// Package stores provides the build history for fwgen.
//
// SQLiteStore keeps one row per build with the resolved component order,
// auto-load provenance, defines and a hash of the validated configuration.
// Successful builds also store each registration step; failed builds store
// their configuration errors. Schema changes are embedded migrations run
// through golang-migrate.
package stores
