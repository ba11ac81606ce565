// Package persist writes and reads full snapshots of the learned state.
//
// The JSON backend keeps the two-file layout the bot has always used: a
// dictionary file {meta, entries} and a distance file {meta, distances}.
// Older dictionaries whose entry context is a bare string are migrated to the
// current schema on load. The SQLite backend stores the same snapshot in
// tables and replaces it inside one transaction.
package persist
