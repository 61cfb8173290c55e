package handler

import (
	"fmt"
	"net/http"
	"strconv"
)

func parseIntParam(value, name string) (int64, error) {
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", name, value)
	}
	return parsed, nil
}

// pagination reads limit/offset query params, falling back to the
// configured page size.
func (h *Handler) pagination(r *http.Request) (limit, offset int) {
	limit = h.cfg.Public.PageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
