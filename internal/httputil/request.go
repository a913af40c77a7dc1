package httputil

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zavolah/marketplace/internal/errors"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// DefaultLimit is the page size when the caller does not pass one.
const DefaultLimit = 50

// Page bounds.
const (
	MaxLimit  = 1000
	MaxOffset = 1 << 31
)

// Decode reads a JSON body into v. Unknown fields are ignored.
func Decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.Validation("request body required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.Validation("request body required")
		}
		return errors.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}

// DecodeJSON decodes the body and writes a 400 on failure. It reports
// whether the handler should continue.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := Decode(r, v); err != nil {
		BadRequest(w, errors.GetServiceError(err).Message)
		return false
	}
	return true
}

// PathParam returns a mux route variable.
func PathParam(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// Query returns a trimmed query parameter.
func Query(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// RequiredQuery returns a query parameter or a validation error when absent.
func RequiredQuery(r *http.Request, name string) (string, error) {
	v := Query(r, name)
	if v == "" {
		return "", errors.Validationf("query parameter %q is required", name)
	}
	return v, nil
}

// QueryInt parses an integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := Query(r, name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validationf("query parameter %q must be an integer", name)
	}
	return n, nil
}

// QueryFloat parses an optional float query parameter.
func QueryFloat(r *http.Request, name string) (*float64, error) {
	raw := Query(r, name)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.Validationf("query parameter %q must be a number", name)
	}
	return &f, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	raw := Query(r, name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Validationf("query parameter %q must be a boolean", name)
	}
	return &b, nil
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// Pagination reads limit and offset. Limits are clamped to 1..MaxLimit and
// offsets outside 0..MaxOffset rejected.
func Pagination(r *http.Request, defaultLimit int) (Page, error) {
	limit, err := QueryInt(r, "limit", defaultLimit)
	if err != nil {
		return Page{}, err
	}
	offset, err := QueryInt(r, "offset", 0)
	if err != nil {
		return Page{}, err
	}
	if limit < 1 {
		return Page{}, errors.Validation("limit must be positive")
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		return Page{}, errors.Validation("offset must not be negative")
	}
	if offset > MaxOffset {
		return Page{}, errors.Validationf("offset must not exceed %d", MaxOffset)
	}
	return Page{Limit: limit, Offset: offset}, nil
}
