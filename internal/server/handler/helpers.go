package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// List endpoints page with limit/offset. The cap keeps a single request from
// dragging the whole bets table over the wire.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parsePagination reads limit and offset from the query string. Absent or
// unparsable values fall back to the defaults rather than erroring.
func parsePagination(r *http.Request) (limit, offset int) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()

	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, maxPageSize)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return limit, offset
}

func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
