package server

import (
	"encoding/json"
	"net/http"

	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Debug("response encode failed", "error", err)
	}
}

// writeError renders err as {ok:false, error, kind, ...diagnostics}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	body := apperr.Fields(err)
	body["ok"] = false
	body["error"] = err.Error()
	if status == http.StatusInternalServerError {
		util.Error("request error", "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()), "error", err)
		body["error"] = "internal server error"
	} else {
		util.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeOK(w http.ResponseWriter, key string, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, key: data})
}
