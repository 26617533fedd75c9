package queue

import (
	"errors"
	"unicode/utf8"
)

// ErrDuplicateEnqueue is returned when a file entry already has a pending or
// processing queue entry. It is a caller error and is never retried.
var ErrDuplicateEnqueue = errors.New("file already enqueued")

// ErrEmptyBatch is returned when a batch is submitted without members.
var ErrEmptyBatch = errors.New("batch requires at least one file")

// lastErrorLimit bounds persisted failure messages.
const lastErrorLimit = 1024

func truncateError(message string) string {
	if len(message) <= lastErrorLimit {
		return message
	}
	cut := lastErrorLimit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
