package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freightdesk/convoy/internal/ident"
	"github.com/freightdesk/convoy/internal/store"
)

// ReplySentAtLayout is the display layout the chat channel stamps on
// quoted messages.
const ReplySentAtLayout = "02/01/2006 15:04:05.000"

// ResolveNegotiation finds the ledger row a quoted message belongs to. The
// send time pins the search to its hour bucket and the one before; among
// candidates the row whose negotiation started nearest at-or-before the
// message wins. With no datable candidate the latest row is the answer.
func ResolveNegotiation(ctx context.Context, ledger store.LedgerStore, contact, sentAt string) (*store.NegotiationRecord, error) {
	ts, err := time.ParseInLocation(ReplySentAtLayout, sentAt, time.UTC)
	if err != nil {
		return latestOr(ctx, ledger, contact, fmt.Errorf("parse reply time %q: %w", sentAt, err))
	}

	bucket := ident.CurrentSessionBucket(ts)
	buckets := []string{bucket, ident.BucketBefore(bucket)}
	recs, err := ledger.Buckets(ctx, contact, buckets)
	if err != nil {
		return nil, fmt.Errorf("resolve negotiation: %w", err)
	}

	var best *store.NegotiationRecord
	var bestStart int64
	for i := range recs {
		started, err := ident.ParseTimestamp(recs[i].SessionStartedAt)
		if err != nil {
			continue
		}
		if started > ts.Unix() {
			continue
		}
		if best == nil || started > bestStart {
			best = &recs[i]
			bestStart = started
		}
	}
	if best != nil {
		return best, nil
	}
	return latestOr(ctx, ledger, contact, nil)
}

func latestOr(ctx context.Context, ledger store.LedgerStore, contact string, cause error) (*store.NegotiationRecord, error) {
	rec, err := ledger.Latest(ctx, contact)
	if errors.Is(err, store.ErrNotFound) {
		if cause != nil {
			return nil, cause
		}
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve negotiation: %w", err)
	}
	return rec, nil
}
