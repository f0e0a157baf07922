package model

// DataMessage flag bits (§4.8). These are a disjoint set: at most one of the
// two is expected to be set by a well-behaved sender, and any other bit is a
// protocol fault (UnknownFlags).
const (
	FlagEndSession            uint32 = 1 << 0
	FlagExpirationTimerUpdate uint32 = 1 << 1
)

// AttachmentPointer references an encrypted blob on the relay; Data is
// populated only after a successful fetch+decrypt (§4.8).
type AttachmentPointer struct {
	ID   uint64
	Key  []byte
	Data []byte
}

// GroupType classifies a GroupContext attached to a DataMessage (§4.7).
type GroupType int32

const (
	GroupUnknown GroupType = iota
	GroupUpdate
	GroupDeliver
	GroupQuit
)

func (t GroupType) String() string {
	switch t {
	case GroupUpdate:
		return "UPDATE"
	case GroupDeliver:
		return "DELIVER"
	case GroupQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// GroupContext is the membership/metadata update carried by a DataMessage.
// ID is opaque bytes used as the roster primary key.
type GroupContext struct {
	ID      []byte
	Type    GroupType
	Name    *string
	Avatar  []byte
	Members []string
}

// DataMessage is the normalized, decrypted payload of a non-sync Content
// (§3, §4.8). After processDecrypted, Flags and ExpireTimer are never nil
// (they are plain uint32, never pointers) and the mutually exclusive flag
// classes have been enforced.
type DataMessage struct {
	Flags       uint32
	Body        *string
	Attachments []*AttachmentPointer
	Group       *GroupContext
	ExpireTimer uint32
}

// Content carries at most one of DataMessage/SyncMessage; both set or both
// absent is a fault (EmptyContent).
type Content struct {
	DataMessage *DataMessage
	SyncMessage *SyncMessage
}

type SyncSent struct {
	Destination              string
	Message                  *DataMessage
	Timestamp                uint64
	ExpirationStartTimestamp *uint64
}

// SyncAttachmentBlob points at a frame-delimited contact/group export.
type SyncAttachmentBlob struct {
	Attachment *AttachmentPointer
}

type SyncBlocked struct {
	Numbers []string
}

type SyncRequest struct {
	Type int32
}

type SyncRead struct {
	Sender    string
	Timestamp uint64
}

// SyncMessage dispatches on whichever single field is set (§4.6).
type SyncMessage struct {
	Sent     *SyncSent
	Contacts *SyncAttachmentBlob
	Groups   *SyncAttachmentBlob
	Blocked  *SyncBlocked
	Request  *SyncRequest
	Read     []*SyncRead
}

// ContactRecord is one entry streamed out of a contacts sync blob.
type ContactRecord struct {
	Number string
	Name   string
	Avatar *AttachmentPointer
}

// GroupRecord is one entry streamed out of a groups sync blob.
type GroupRecord struct {
	ID      []byte
	Name    string
	Members []string
	Avatar  *AttachmentPointer
	Active  bool
}

// Group is the persisted roster record for a GroupContext.ID (§4.7).
type Group struct {
	ID      []byte `bson:"_id"`
	Name    string `bson:"name"`
	Avatar  []byte `bson:"avatar,omitempty"`
	Members []string `bson:"members"`
}
