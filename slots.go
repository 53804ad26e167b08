package voicemail

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sipfoundry/voicemail/store"
)

// Reserved slot labels and pseudo message ids. Slots are addressed by a
// fixed label plus a fixed id instead of a folder and a sequence-allocated
// message id; they hold at most one current value, are not subject to
// folder transitions and fire no notifications.
const (
	slotLabelRecorder  = "RECORDER"
	slotLabelGreetings = "GREETINGS"

	recorderMessageID = "RECORDER-MSGID"
)

// GreetingType identifies one of the per-type greeting slots.
type GreetingType string

// Greeting types.
const (
	GreetingStandard        GreetingType = "standard"
	GreetingOutOfOffice     GreetingType = "outofoffice"
	GreetingExtendedAbsence GreetingType = "extendedabsence"
)

// greetingTypes lists all greeting types in declaration order.
var greetingTypes = []GreetingType{GreetingStandard, GreetingOutOfOffice, GreetingExtendedAbsence}

func (g GreetingType) String() string { return string(g) }

// LookupGreetingType maps a greeting type name to a GreetingType,
// case-insensitively. Returns ErrInvalidGreetingType for unknown names.
func LookupGreetingType(name string) (GreetingType, error) {
	for _, g := range greetingTypes {
		if strings.EqualFold(name, string(g)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGreetingType, name)
}

// SaveRecordedName stores the user's recorded name, replacing any existing
// recording. The staged recording is consumed.
func (m *userMailbox) SaveRecordedName(ctx context.Context, rec *StagedRecording) error {
	filename := "recorded_name." + m.manager.opts.audioFormat.ID
	return m.saveSlot(ctx, slotLabelRecorder, recorderMessageID, filename, rec)
}

// RecordedName opens the user's recorded name for playback. When the
// store has no recording and a mailstore directory is configured, the
// legacy per-user file tree is consulted as a fallback.
func (m *userMailbox) RecordedName(ctx context.Context) (io.ReadCloser, error) {
	rc, err := m.openSlot(ctx, slotLabelRecorder, recorderMessageID)
	if err == nil {
		return rc, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	// Legacy fallback: <mailstore>/<user>/name/recorded_name.<format>
	if dir := m.manager.opts.mailstoreDir; dir != "" {
		path := filepath.Join(dir, m.user, "name", "recorded_name."+m.manager.opts.audioFormat.ID)
		f, ferr := os.Open(path)
		if ferr == nil {
			return f, nil
		}
		if !os.IsNotExist(ferr) {
			return nil, fmt.Errorf("open legacy recorded name: %w", ferr)
		}
	}
	return nil, ErrNotFound
}

// SaveGreeting stores a greeting of the given type, replacing any existing
// recording for that type. The staged recording is consumed.
func (m *userMailbox) SaveGreeting(ctx context.Context, gt GreetingType, rec *StagedRecording) error {
	filename := string(gt) + "." + m.manager.opts.audioFormat.ID
	return m.saveSlot(ctx, slotLabelGreetings, string(gt), filename, rec)
}

// Greeting opens a greeting of the given type for playback. Returns
// ErrNotFound if none has been recorded.
func (m *userMailbox) Greeting(ctx context.Context, gt GreetingType) (io.ReadCloser, error) {
	rc, err := m.openSlot(ctx, slotLabelGreetings, string(gt))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rc, nil
}

// saveSlot replaces a reserved slot's value: the existing variant, if any,
// is deleted before the replacement is stored.
func (m *userMailbox) saveSlot(ctx context.Context, label, messageID, filename string, rec *StagedRecording) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if !rec.valid() {
		return ErrRecordingRequired
	}
	defer func() {
		if err := rec.Discard(); err != nil {
			m.manager.logger.Warn("failed to remove scratch file",
				"error", err, "path", rec.Path)
		}
	}()

	owner, err := m.owner(ctx)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}

	if existing, err := m.manager.store.FindInLabel(ctx, m.user, label, messageID); err == nil {
		if v, verr := m.manager.store.VariantByFilename(ctx, existing, filename); verr == nil {
			if derr := m.manager.store.DeleteVariant(ctx, v); derr != nil {
				return fmt.Errorf("replace slot variant: %w", derr)
			}
		} else if !store.IsNotFound(verr) {
			return fmt.Errorf("find slot variant: %w", verr)
		}
	} else if !store.IsNotFound(err) {
		return fmt.Errorf("find slot record: %w", err)
	}

	length, err := rec.ContentLength()
	if err != nil {
		return fmt.Errorf("stat recording: %w", err)
	}
	desc := rec.descriptor(owner.URI, filename, m.manager.opts.audioFormat.ID, length)

	content, err := rec.Open()
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer content.Close()

	if _, err := m.manager.store.StoreVariant(ctx, content, filename, store.KindCurrent,
		label, messageID, owner, desc, false); err != nil {
		return fmt.Errorf("store slot recording: %w", err)
	}

	m.manager.logger.Debug("slot recording saved",
		"user", m.user, "label", label, "filename", filename)
	return nil
}

// openSlot opens a reserved slot's current value.
func (m *userMailbox) openSlot(ctx context.Context, label, messageID string) (io.ReadCloser, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	msg, err := m.manager.store.FindInLabel(ctx, m.user, label, messageID)
	if err != nil {
		return nil, err
	}
	variants, err := m.manager.store.Variants(ctx, msg)
	if err != nil {
		return nil, err
	}
	v := store.PreferredVariant(variants)
	if v == nil {
		return nil, store.ErrNotFound
	}
	return m.manager.store.OpenVariant(ctx, v)
}
