package warehouse

import (
	"errors"

	"github.com/adlio/asanadw/internal/asana"
	"github.com/adlio/asanadw/internal/asanaurl"
	"github.com/adlio/asanadw/internal/period"
	"github.com/adlio/asanadw/internal/storage"
)

// Kind classifies failures for the CLI's exit-code mapping. Everything
// that is not recovered internally surfaces as exactly one kind.
type Kind string

const (
	KindAPI               Kind = "api"
	KindRateLimit         Kind = "rate-limit"
	KindDatabase          Kind = "database"
	KindSync              Kind = "sync"
	KindURLParse          Kind = "url-parse"
	KindInvalidIdentifier Kind = "invalid-identifier"
	KindPeriodParse       Kind = "period-parse"
	KindConfig            Kind = "config"
	KindLLM               Kind = "llm"
	KindNotFound          Kind = "not-found"
	KindOther             Kind = "other"
)

// ErrConfig marks configuration failures (missing key, bad value).
var ErrConfig = errors.New("configuration error")

// Classify maps an error to its kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case asana.IsRateLimited(err):
		return KindRateLimit
	case errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, storage.ErrAmbiguous):
		return KindInvalidIdentifier
	case errors.Is(err, storage.ErrSyncRunning):
		return KindSync
	case errors.Is(err, period.ErrParse):
		return KindPeriodParse
	case errors.Is(err, asanaurl.ErrParse):
		return KindURLParse
	case errors.Is(err, ErrConfig):
		return KindConfig
	}
	var apiErr *asana.APIError
	if errors.As(err, &apiErr) {
		return KindAPI
	}
	return KindOther
}
