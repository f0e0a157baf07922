// Package attachment composes a relay fetch with AEAD decrypt to populate
// AttachmentPointer.Data (§4.8: "fetch over HTTP ... decrypt with
// attachment.key, store bytes into .data").
package attachment

import (
	"context"

	"github.com/pkg/errors"

	"e2ereceiver/internal/cryptographic/encryption"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/relayclient"
)

// FetchAndDecrypt fetches the ciphertext for p.ID and decrypts it with
// p.Key, filling p.Data in place.
func FetchAndDecrypt(ctx context.Context, client *relayclient.Client, p *model.AttachmentPointer) error {
	ciphertext, err := client.FetchAttachment(ctx, p.ID)
	if err != nil {
		return errors.Wrapf(err, "attachment: fetch %d", p.ID)
	}

	plaintext, err := encryption.AEADDecrypt(p.Key, ciphertext, nil)
	if err != nil {
		return errors.Wrapf(err, "attachment: decrypt %d", p.ID)
	}

	p.Data = plaintext
	return nil
}
