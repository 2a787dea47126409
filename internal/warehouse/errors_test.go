package warehouse

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/asanaurl"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

func TestClassify(t *testing.T) {
	_, periodErr := period.Parse("garbage", time.Now())
	_, urlErr := asanaurl.Parse("https://app.asana.com/9/nope")

	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{&asana.APIError{StatusCode: http.StatusTooManyRequests}, KindRateLimit},
		{&asana.APIError{StatusCode: http.StatusInternalServerError}, KindAPI},
		{fmt.Errorf("wrap: %w", storage.ErrNotFound), KindNotFound},
		{fmt.Errorf("wrap: %w", storage.ErrAmbiguous), KindInvalidIdentifier},
		{fmt.Errorf("wrap: %w", storage.ErrSyncRunning), KindSync},
		{periodErr, KindPeriodParse},
		{urlErr, KindURLParse},
		{fmt.Errorf("%w: missing ASANA_TOKEN", ErrConfig), KindConfig},
		{fmt.Errorf("something else"), KindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
