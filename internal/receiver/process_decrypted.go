package receiver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"e2ereceiver/internal/attachment"
	"e2ereceiver/internal/model"
	"e2ereceiver/internal/receivererr"
)

// processDecrypted normalizes a decoded DataMessage's flags, then fetches
// attachments and reconciles any attached group concurrently (§4.8).
func (r *Receiver) processDecrypted(ctx context.Context, source model.Address, dm *model.DataMessage) error {
	switch dm.Flags {
	case 0:
		// no flag set, fall through to attachment/group processing below
	case model.FlagEndSession:
		dm.Body = nil
		dm.Attachments = nil
		dm.Group = nil
		return nil
	case model.FlagExpirationTimerUpdate:
		dm.Body = nil
		dm.Attachments = nil
		return nil
	default:
		return receivererr.ErrUnknownFlags
	}

	g, gctx := errgroup.WithContext(ctx)

	if dm.Group != nil {
		g.Go(func() error {
			return r.reconcileGroup(gctx, source, dm)
		})
	}

	for _, att := range dm.Attachments {
		att := att
		g.Go(func() error {
			return attachment.FetchAndDecrypt(gctx, r.relay, att)
		})
	}

	return g.Wait()
}
