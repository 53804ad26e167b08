// Package audio provides the audio format registry and the concatenation
// collaborator used when composing forwarded messages.
//
// The voicemail store is format-agnostic: it persists whatever payload it
// is handed and records the format name alongside it. This package carries
// the small amount of format knowledge the rest of the module needs - the
// file extension and the MIME content type used when uploading payloads to
// blob backends. Codec semantics (decoding, transcoding, resampling) are
// out of scope; concatenation is delegated to an injected Concatenator.
package audio

import "strings"

// Format describes one supported audio container format.
type Format struct {
	// ID is the format name persisted in the "audioFormat" field and used
	// as the file extension (e.g. "wav").
	ID string
	// ContentType is the MIME type reported to blob backends.
	ContentType string
}

// Built-in formats.
var (
	// WAV is the default voicemail recording format.
	WAV = Format{ID: "wav", ContentType: "audio/x-wav"}

	// MP3 is accepted for deposits recorded by external systems.
	MP3 = Format{ID: "mp3", ContentType: "audio/mpeg"}
)

// formats indexes the built-in formats by ID.
var formats = map[string]Format{
	WAV.ID: WAV,
	MP3.ID: MP3,
}

// Extension returns the file extension for the format, without a dot.
func (f Format) Extension() string { return f.ID }

func (f Format) String() string { return f.ID }

// TryLookupFormat maps a stored format id to a Format, case-insensitively.
// Unknown formats report ok=false.
func TryLookupFormat(id string) (Format, bool) {
	f, ok := formats[strings.ToLower(id)]
	return f, ok
}

// ContentTypeFor returns the MIME type for a format id, falling back to
// application/octet-stream for formats this package does not know.
func ContentTypeFor(id string) string {
	if f, ok := TryLookupFormat(id); ok {
		return f.ContentType
	}
	return "application/octet-stream"
}
