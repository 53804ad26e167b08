package store

import (
	"fmt"
	"strings"
)

// Folder is a message lifecycle bucket. Folder ids are persisted in the
// "label" field; reserved slot labels (recorded name, greetings) share that
// field but are not folders.
type Folder string

// The four lifecycle folders.
const (
	FolderInbox      Folder = "inbox"
	FolderSaved      Folder = "saved"
	FolderDeleted    Folder = "deleted"
	FolderConference Folder = "conference"
)

// folders lists all folders in declaration order.
var folders = []Folder{FolderInbox, FolderSaved, FolderDeleted, FolderConference}

// ID returns the persisted folder id.
func (f Folder) ID() string { return string(f) }

func (f Folder) String() string { return string(f) }

// LookupFolder maps a folder id to a Folder, case-insensitively.
// Returns ErrInvalidFolder for unknown names.
func LookupFolder(name string) (Folder, error) {
	if f, ok := TryLookupFolder(name); ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFolder, name)
}

// TryLookupFolder is the non-failing lookup for callers that must tolerate
// reserved slot labels and legacy values.
func TryLookupFolder(name string) (Folder, bool) {
	for _, f := range folders {
		if strings.EqualFold(name, string(f)) {
			return f, true
		}
	}
	return "", false
}

// VariantKind identifies one of the up to three audio renditions of a
// message. Kinds have a strict priority order used for default selection:
// ORIGINAL < CURRENT < COMBINED.
type VariantKind string

// Variant kinds, persisted by name in the "audioIdentifier" field.
const (
	KindOriginal VariantKind = "ORIGINAL"
	KindCurrent  VariantKind = "CURRENT"
	KindCombined VariantKind = "COMBINED"
)

// kindSuffix maps each kind to its filename-suffix template. The verb is
// filled with the audio format (e.g. "wav").
var kindSuffix = map[VariantKind]string{
	KindOriginal: "-01.%s",
	KindCurrent:  "-00.%s",
	KindCombined: "-FW.%s",
}

// kindRank orders kinds for default selection.
var kindRank = map[VariantKind]int{
	KindOriginal: 0,
	KindCurrent:  1,
	KindCombined: 2,
}

func (k VariantKind) String() string { return string(k) }

// SuffixFormat returns the filename-suffix template for the kind.
func (k VariantKind) SuffixFormat() string { return kindSuffix[k] }

// Filename materializes the stored file name for a message id and audio
// format, e.g. Filename("000100000007", "wav") for KindCombined yields
// "000100000007-FW.wav".
func (k VariantKind) Filename(messageID, audioFormat string) string {
	return messageID + fmt.Sprintf(kindSuffix[k], audioFormat)
}

// rank returns the kind's position in the intrinsic priority order.
// Unknown kinds sort below every known one.
func (k VariantKind) rank() int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return -1
}

// LookupVariantKind maps a stored kind name to a VariantKind,
// case-insensitively. Returns ErrInvalidVariantKind for unknown names.
func LookupVariantKind(name string) (VariantKind, error) {
	if k, ok := TryLookupVariantKind(name); ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVariantKind, name)
}

// TryLookupVariantKind is the non-failing kind lookup.
func TryLookupVariantKind(name string) (VariantKind, bool) {
	for k := range kindSuffix {
		if strings.EqualFold(name, string(k)) {
			return k, true
		}
	}
	return "", false
}
