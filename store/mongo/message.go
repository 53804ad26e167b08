package mongo

import (
	"time"

	"github.com/sipfoundry/voicemail/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// messageDoc is the persisted shape of a store.Message. Field names match
// the wire format shared by every backend.
type messageDoc struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	User            string        `bson:"user"`
	UserURI         string        `bson:"userURI"`
	Label           string        `bson:"label"`
	MessageID       string        `bson:"messageId"`
	Unheard         bool          `bson:"unheard"`
	FromURI         string        `bson:"fromURI"`
	Subject         string        `bson:"subject"`
	Priority        string        `bson:"priority"`
	Timestamp       int64         `bson:"timestamp"` // epoch millis
	OtherRecipients []string      `bson:"otherRecipients,omitempty"`
	AudioFormat     string        `bson:"audioFormat"`
}

// variantMeta is the metadata document attached to each GridFS file.
type variantMeta struct {
	VoicemailID     string `bson:"voicemailId"`
	AudioIdentifier string `bson:"audioIdentifier"`
	Duration        int64  `bson:"duration"`
	Timestamp       int64  `bson:"timestamp"` // epoch millis
	FilePath        string `bson:"filePath"`
	AudioFormat     string `bson:"audioFormat"`
	ContentLength   int64  `bson:"contentLength"`
}

// fileDoc is the GridFS files-collection projection used when listing
// variants.
type fileDoc struct {
	ID       bson.ObjectID `bson:"_id"`
	Filename string        `bson:"filename"`
	Length   int64         `bson:"length"`
	Metadata variantMeta   `bson:"metadata"`
}

func docToMessage(doc *messageDoc) *store.Message {
	priority, ok := store.TryLookupPriority(doc.Priority)
	if !ok {
		priority = store.PriorityNormal
	}
	return &store.Message{
		ID:              doc.ID.Hex(),
		Owner:           doc.User,
		OwnerURI:        doc.UserURI,
		Label:           doc.Label,
		MessageID:       doc.MessageID,
		Unheard:         doc.Unheard,
		FromURI:         doc.FromURI,
		Subject:         doc.Subject,
		Priority:        priority,
		Timestamp:       time.UnixMilli(doc.Timestamp).UTC(),
		OtherRecipients: doc.OtherRecipients,
		AudioFormat:     doc.AudioFormat,
	}
}

func messageToDoc(msg *store.Message) *messageDoc {
	return &messageDoc{
		User:            msg.Owner,
		UserURI:         msg.OwnerURI,
		Label:           msg.Label,
		MessageID:       msg.MessageID,
		Unheard:         msg.Unheard,
		FromURI:         msg.FromURI,
		Subject:         msg.Subject,
		Priority:        string(msg.Priority),
		Timestamp:       msg.Timestamp.UnixMilli(),
		OtherRecipients: msg.OtherRecipients,
		AudioFormat:     msg.AudioFormat,
	}
}

func fileToVariant(doc *fileDoc) *store.AudioVariant {
	kind, ok := store.TryLookupVariantKind(doc.Metadata.AudioIdentifier)
	if !ok {
		kind = store.VariantKind(doc.Metadata.AudioIdentifier)
	}
	length := doc.Metadata.ContentLength
	if length == 0 {
		length = doc.Length
	}
	return &store.AudioVariant{
		ID:            doc.ID.Hex(),
		VoicemailID:   doc.Metadata.VoicemailID,
		Kind:          kind,
		Filename:      doc.Filename,
		Duration:      doc.Metadata.Duration,
		Timestamp:     time.UnixMilli(doc.Metadata.Timestamp).UTC(),
		FilePath:      doc.Metadata.FilePath,
		AudioFormat:   doc.Metadata.AudioFormat,
		ContentLength: length,
	}
}
