package store

import _ "embed"

// Schema creates every table the Postgres stores and the event log use.
// Statements are idempotent.
//
//go:embed schema.sql
var Schema string
