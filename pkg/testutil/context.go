package testutil

import (
	"net/http"
	"time"

	"ppdb/pkg/requestcontext"
)

// WithFrozenTime pins the request-scoped clock, so handlers observe a
// deterministic time.
func WithFrozenTime(req *http.Request, now time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), now)
	return req.WithContext(ctx)
}
