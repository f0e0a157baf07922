package events

import "e2ereceiver/internal/model"

// MessagePayload backs the "message" event (§4.6 DataMessage path).
type MessagePayload struct {
	Source       model.Address
	Timestamp    uint64
	Message      *model.DataMessage
}

// SentPayload backs the "sent" event (§4.6 sync "sent" branch).
type SentPayload struct {
	Destination              string
	Timestamp                uint64
	Message                  *model.DataMessage
	ExpirationStartTimestamp *uint64
}

// ReceiptPayload backs the "receipt" event (§4.5 RECEIPT dispatch).
type ReceiptPayload struct {
	Envelope *model.Envelope
}

// ReadPayload backs one "read" event per (sender, timestamp) pair (§4.6).
type ReadPayload struct {
	Sender    string
	Timestamp uint64
}

// ContactPayload backs one "contact" event per streamed contact record.
type ContactPayload struct {
	Contact *model.ContactRecord
}

// GroupRecordPayload backs one "group" event per streamed group record from
// a groups sync blob (§4.6), as distinct from GroupPayload's DataMessage-
// triggered reconciliation updates (§4.7).
type GroupRecordPayload struct {
	Record *model.GroupRecord
}

// GroupPayload backs one "group" event per reconciled group update.
// Added holds the members introduced by this UPDATE, if any (§8 scenario 5).
type GroupPayload struct {
	Source  model.Address
	Group   *model.GroupContext
	Added   []string
	Message *model.DataMessage
}

// ErrorPayload backs the "error" event. Cause is the typed error (§7); it
// may be unwrapped with errors.As to recover e.g. *receivererr.IncomingIdentityKeyError.
type ErrorPayload struct {
	Cause error
}

// ContactSyncPayload backs the terminal "contactsync" event, emitted once
// every streamed ContactPayload has been dispatched.
type ContactSyncPayload struct {
	Count int
}

// GroupSyncPayload backs the terminal "groupsync" event, emitted once every
// streamed GroupRecordPayload from a groups sync has been dispatched.
type GroupSyncPayload struct {
	Count int
}
