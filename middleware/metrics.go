package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/videonest/videonest/metrics"
)

// Observed records the request duration under the given handler name.
func Observed(handler string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)
		next(wrapped, r, ps)
		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}
		metrics.Metrics.APIRequestDurationSec.
			WithLabelValues(handler, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}
}
