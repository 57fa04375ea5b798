// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid generates the time-ordered identifiers used for user ids,
request ids and audit key suffixes.

Version 7 values sort by creation time, so keys that embed them list in
roughly chronological order.
*/
package uuid

import "github.com/google/uuid"

// New generates a new UUIDv7 string.
func New() string {
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUID: " + err.Error())
	}

	return id.String()
}

// Valid reports whether value parses as a UUID of any version.
func Valid(value string) bool {
	return uuid.Validate(value) == nil
}
