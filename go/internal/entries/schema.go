package entries

import _ "embed"

// Schema creates the activities and activity_entries tables if they are missing.
//
//go:embed schema.sql
var Schema string
