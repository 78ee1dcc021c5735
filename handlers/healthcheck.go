// Package handlers holds the HTTP handlers of the read API and the auth
// service.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/videonest/videonest/log"
)

// Healthcheck answers liveness probes.
func Healthcheck() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"msg": "healthy"}); err != nil {
			log.LogNoVideoID("Failed to write healthcheck response", "err", err.Error())
		}
	}
}
