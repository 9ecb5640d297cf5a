// Package watcher ingests files dropped into a watched directory.
//
// The drop-box layout is one subdirectory per user:
//
//	<dir>/alice/lecture-notes.md
//	<dir>/bob/paper.txt
//
// Files created or modified under a user directory are uploaded to the
// ingestion pipeline for that user; deleted files remove the matching
// document. Events are debounced so editors that write in several
// bursts trigger a single ingestion.
package watcher

import "time"

// Operation is a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one file system event under the drop-box.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the drop-box watcher.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced
	// events. Default: 500ms.
	DebounceWindow time.Duration

	// EventBufferSize is the size of the raw event channel buffer.
	// Default: 256.
	EventBufferSize int

	// MaxFileBytes skips files larger than this. Default: 20MB.
	MaxFileBytes int64
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 256,
		MaxFileBytes:    20 * 1024 * 1024,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.MaxFileBytes == 0 {
		o.MaxFileBytes = defaults.MaxFileBytes
	}
	return o
}
