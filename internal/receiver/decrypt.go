package receiver

import (
	"context"

	"github.com/pkg/errors"

	"e2ereceiver/internal/events"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
	"e2ereceiver/internal/wire"
)

// decryptAndDispatch is the Decryptor (DEC, §4.5): classify envelope.Type,
// invoke the appropriate session-cipher operation, unpad, and hand the
// result to the Content Dispatcher.
func (r *Receiver) decryptAndDispatch(ctx context.Context, env *model.Envelope) error {
	switch env.Type {
	case model.EnvelopeReceipt:
		r.bus.Emit(events.Receipt, events.ReceiptPayload{Envelope: env})
		return nil

	case model.EnvelopeCiphertext:
		wm, err := wire.DecodeWhisperMessage(env.Ciphertext())
		if err != nil {
			return errors.Wrap(err, "receiver: decode whisper message")
		}
		padded, err := r.sessions.DecryptWhisperMessage(ctx, env.Address(), wm.Header, wm.Ciphertext)
		if err != nil {
			return errors.Wrap(err, "receiver: decrypt whisper message")
		}
		plaintext, err := unpad(padded)
		if err != nil {
			return err
		}
		return r.dispatchPlaintext(ctx, env, plaintext)

	case model.EnvelopePreKeyBundle:
		pkm, err := wire.DecodePreKeyWhisperMessage(env.Ciphertext())
		if err != nil {
			return errors.Wrap(err, "receiver: decode prekey whisper message")
		}
		bundle := model.SharedKey{IKPub: pkm.IdentityKey}
		padded, err := r.sessions.DecryptPreKeyWhisperMessage(ctx, env.Address(), bundle, pkm.EphemeralPub, pkm.Message.Header, pkm.Message.Ciphertext)
		if err != nil {
			return err // may be *receivererr.IncomingIdentityKeyError; passed through untouched
		}
		plaintext, err := unpad(padded)
		if err != nil {
			return err
		}
		return r.dispatchPlaintext(ctx, env, plaintext)

	default:
		return receivererr.ErrUnknownMessageType
	}
}

// unpad is the right inverse of the sender's padding scheme: plaintext is
// followed by a single 0x80 sentinel and zero or more 0x00 bytes. Scanning
// from the tail, the first non-zero byte encountered must be 0x80 (§4.5,
// §8 invariant).
func unpad(padded []byte) ([]byte, error) {
	i := len(padded) - 1
	for i >= 0 && padded[i] == 0x00 {
		i--
	}
	if i < 0 || padded[i] != 0x80 {
		return nil, receivererr.UnpadError(len(padded))
	}
	return padded[:i], nil
}
