package model

// EnvelopeType classifies the wire-level encrypted record delivered inside a
// PUT /messages request body, after signaling-key decrypt.
type EnvelopeType int32

const (
	EnvelopeUnknown EnvelopeType = iota
	EnvelopeCiphertext
	EnvelopePreKeyBundle
	EnvelopeReceipt
)

func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeCiphertext:
		return "CIPHERTEXT"
	case EnvelopePreKeyBundle:
		return "PREKEY_BUNDLE"
	case EnvelopeReceipt:
		return "RECEIPT"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the signaling-key-decrypted, still end-to-end-encrypted record
// addressed to this device. Exactly one of LegacyBody/Content is set for
// non-RECEIPT types; RECEIPT carries neither.
type Envelope struct {
	Type         EnvelopeType
	Source       string
	SourceDevice uint32
	Timestamp    uint64
	LegacyBody   []byte
	Content      []byte
}

func (e *Envelope) Address() Address {
	return NewAddress(e.Source, e.SourceDevice)
}

func (e *Envelope) HasContent() bool {
	return len(e.Content) > 0
}

func (e *Envelope) Ciphertext() []byte {
	if e.HasContent() {
		return e.Content
	}
	return e.LegacyBody
}
