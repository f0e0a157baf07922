package model

type (
	// Header is the ratchet header carried alongside each ciphertext.
	Header struct {
		Pub    [32]byte // sender's current ratchet public key
		MsgNum uint32   // message number in the sending chain
		Prev   uint32   // previous sending chain length (PN)
	}

	// WhisperMessage is a CIPHERTEXT envelope's decoded body: a ratchet
	// header plus the AEAD-sealed plaintext it authenticates (§4.5).
	WhisperMessage struct {
		Header     Header
		Ciphertext []byte
	}

	// PreKeyWhisperMessage is a PREKEY_BUNDLE envelope's decoded body: the
	// sender's X3DH identity key and ephemeral public key, plus the first
	// WhisperMessage of the new session (§4.5).
	PreKeyWhisperMessage struct {
		IdentityKey  []byte
		EphemeralPub [32]byte
		Message      WhisperMessage
	}
)
