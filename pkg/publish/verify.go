package publish

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/types"
)

// Reader fetches what the vendor currently has stored for a site.
type Reader interface {
	Readback(ctx context.Context, siteID string) (types.StoredTariff, error)
}

// verifyTolerance is the maximum absolute difference allowed between a sent
// buy rate and the stored one, absorbing float round-tripping on the vendor
// side.
const verifyTolerance = 0.001

// mismatchPreview caps how many mismatches get logged.
const mismatchPreview = 5

// Verifier compares the buy rates a push sent against what the vendor
// reports storing. Its result is advisory and never fails a push.
type Verifier struct {
	reader Reader
}

// NewVerifier returns a Verifier over the given reader.
func NewVerifier(reader Reader) *Verifier {
	return &Verifier{reader: reader}
}

// Verify reads the stored tariff back and reports whether every sent buy
// rate is present within tolerance. Readback errors and an empty stored
// schedule both report false. Extra stored keys the push never sent are
// ignored.
func (v *Verifier) Verify(ctx context.Context, siteID string, sent types.TariffDocument) bool {
	stored, err := v.reader.Readback(ctx, siteID)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "verification readback failed",
			slog.Any("error", err))
		return false
	}
	if len(stored.Rates) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "verification found no stored rates")
		return false
	}

	var mismatches []string
	for key, want := range sent.BuyRates() {
		got, exists := stored.Rates[key]
		if !exists {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", key))
			continue
		}
		if math.Abs(got-want) > verifyTolerance {
			mismatches = append(mismatches, fmt.Sprintf("%s: sent=%v, stored=%v", key, want, got))
		}
	}
	if len(mismatches) > 0 {
		sort.Strings(mismatches)
		preview := mismatches
		if len(preview) > mismatchPreview {
			preview = preview[:mismatchPreview]
		}
		log.Ctx(ctx).WarnContext(ctx, "verification found mismatched rates",
			slog.Int("mismatches", len(mismatches)),
			slog.Any("preview", preview),
		)
		return false
	}

	log.Ctx(ctx).InfoContext(ctx, "verification passed, all rates match",
		slog.Int("rates", len(sent.BuyRates())))
	return true
}
