// Package testutil provides common testing utilities, including an in-memory
// PostgREST and GoTrue server for exercising repositories end to end.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zavolah/marketplace/infra/supabase"
)

// Row is one stored record.
type Row = map[string]interface{}

// FakeSupabase is an httptest server speaking the subset of PostgREST and
// GoTrue used by the gateway.
type FakeSupabase struct {
	Server *httptest.Server

	mu       sync.Mutex
	tables   map[string][]Row
	users    map[string]*fakeUser // by email
	tokens   map[string]string    // token -> user id
	failures map[string]int       // "METHOD table" -> status
	requests []string
	clock    time.Time
}

type fakeUser struct {
	ID       string
	Email    string
	Password string
}

// NewFakeSupabase starts a fake server that is closed with the test.
func NewFakeSupabase(t testing.TB) *FakeSupabase {
	t.Helper()
	f := &FakeSupabase{
		tables:   make(map[string][]Row),
		users:    make(map[string]*fakeUser),
		tokens:   make(map[string]string),
		failures: make(map[string]int),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/", f.handleRest)
	mux.HandleFunc("/auth/v1/", f.handleAuth)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Client returns a supabase client pointed at the fake.
func (f *FakeSupabase) Client(t testing.TB) *supabase.Client {
	t.Helper()
	c, err := supabase.New(supabase.Config{
		ProjectURL: f.Server.URL,
		APIKey:     "test-key",
		HTTPClient: f.Server.Client(),
	})
	if err != nil {
		t.Fatalf("supabase.New: %v", err)
	}
	return c
}

// Seed inserts rows as-is (ids and timestamps are filled when missing).
func (f *FakeSupabase) Seed(table string, rows ...Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.tables[table] = append(f.tables[table], f.prepareInsert(r))
	}
}

// Rows returns a copy of the table contents.
func (f *FakeSupabase) Rows(table string) []Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Row, 0, len(f.tables[table]))
	for _, r := range f.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Find returns the row with the given id, or nil.
func (f *FakeSupabase) Find(table, id string) Row {
	for _, r := range f.Rows(table) {
		if r["id"] == id {
			return r
		}
	}
	return nil
}

// FailNext makes the next request with method against table answer status.
func (f *FakeSupabase) FailNext(method, table string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+table] = status
}

// Requests lists "METHOD table" for every REST call served so far.
func (f *FakeSupabase) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// AddUser registers an identity user and returns a valid access token for it.
func (f *FakeSupabase) AddUser(id, email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = &fakeUser{ID: id, Email: email, Password: password}
	token := "token-" + id
	f.tokens[token] = id
	return token
}

// =============================================================================
// PostgREST
// =============================================================================

func (f *FakeSupabase) handleRest(w http.ResponseWriter, r *http.Request) {
	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")

	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + table
	f.requests = append(f.requests, key)
	if status, ok := f.failures[key]; ok {
		delete(f.failures, key)
		writeFakeJSON(w, status, map[string]string{"code": "XX000", "message": "injected failure"})
		return
	}

	preds, order, limit, offset, err := parseQuery(r.URL.Query())
	if err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST100", "message": err.Error()})
		return
	}

	switch r.Method {
	case http.MethodGet:
		rows := make([]Row, 0)
		for _, row := range f.tables[table] {
			if matchAll(row, preds) {
				rows = append(rows, copyRow(row))
			}
		}
		sortRows(rows, order)
		if rng := r.Header.Get("Range"); rng != "" {
			var from, to int
			if _, err := fmt.Sscanf(rng, "%d-%d", &from, &to); err == nil {
				offset, limit = from, to-from+1
			}
		}
		rows = window(rows, offset, limit)
		if r.Header.Get("Accept") == "application/vnd.pgrst.object+json" {
			if len(rows) != 1 {
				writeFakeJSON(w, http.StatusNotAcceptable, map[string]string{
					"code":    "PGRST116",
					"message": "JSON object requested, multiple (or no) rows returned",
				})
				return
			}
			writeFakeJSON(w, http.StatusOK, rows[0])
			return
		}
		writeFakeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var items []Row
		if err := json.Unmarshal(body, &items); err != nil {
			var one Row
			if err := json.Unmarshal(body, &one); err != nil {
				writeFakeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST102", "message": "invalid body"})
				return
			}
			items = []Row{one}
		}
		out := make([]Row, 0, len(items))
		for _, it := range items {
			row := f.prepareInsert(it)
			f.tables[table] = append(f.tables[table], row)
			out = append(out, copyRow(row))
		}
		writeFakeJSON(w, http.StatusCreated, out)

	case http.MethodPatch:
		body, _ := io.ReadAll(r.Body)
		var patch Row
		if err := json.Unmarshal(body, &patch); err != nil {
			writeFakeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST102", "message": "invalid body"})
			return
		}
		out := make([]Row, 0)
		for _, row := range f.tables[table] {
			if !matchAll(row, preds) {
				continue
			}
			for k, v := range patch {
				row[k] = v
			}
			row["updated_at"] = f.tick()
			out = append(out, copyRow(row))
		}
		writeFakeJSON(w, http.StatusOK, out)

	case http.MethodDelete:
		kept := make([]Row, 0, len(f.tables[table]))
		out := make([]Row, 0)
		for _, row := range f.tables[table] {
			if matchAll(row, preds) {
				out = append(out, copyRow(row))
				continue
			}
			kept = append(kept, row)
		}
		f.tables[table] = kept
		writeFakeJSON(w, http.StatusOK, out)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *FakeSupabase) prepareInsert(in Row) Row {
	row := copyRow(normalize(in))
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	now := f.tick()
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = now
	}
	if _, ok := row["updated_at"]; !ok {
		row["updated_at"] = now
	}
	return row
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (f *FakeSupabase) tick() string {
	f.clock = f.clock.Add(time.Second)
	return f.clock.Format(time.RFC3339)
}

// normalize round-trips through JSON so seeded Go values compare like wire values.
func normalize(in Row) Row {
	data, err := json.Marshal(in)
	if err != nil {
		return in
	}
	var out Row
	if err := json.Unmarshal(data, &out); err != nil {
		return in
	}
	return out
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type predicate struct {
	column string
	op     string
	value  string
	negate bool
	or     []predicate
}

type orderKey struct {
	column string
	desc   bool
}

func parseQuery(q url.Values) ([]predicate, []orderKey, int, int, error) {
	var preds []predicate
	var order []orderKey
	limit, offset := -1, 0

	for key, values := range q {
		for _, v := range values {
			switch key {
			case "select":
			case "order":
				for _, part := range strings.Split(v, ",") {
					bits := strings.Split(part, ".")
					ok := orderKey{column: bits[0]}
					if len(bits) > 1 && bits[1] == "desc" {
						ok.desc = true
					}
					order = append(order, ok)
				}
			case "limit":
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, 0, 0, err
				}
				limit = n
			case "offset":
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, 0, 0, err
				}
				offset = n
			case "or":
				inner := strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
				var group []predicate
				for _, expr := range splitTopLevel(inner) {
					col, rest, ok := strings.Cut(expr, ".")
					if !ok {
						return nil, nil, 0, 0, fmt.Errorf("bad or expression %q", expr)
					}
					group = append(group, parsePredicate(col, rest))
				}
				preds = append(preds, predicate{or: group})
			default:
				preds = append(preds, parsePredicate(key, v))
			}
		}
	}
	return preds, order, limit, offset, nil
}

func parsePredicate(column, expr string) predicate {
	p := predicate{column: column}
	if strings.HasPrefix(expr, "not.") {
		p.negate = true
		expr = strings.TrimPrefix(expr, "not.")
	}
	p.op, p.value, _ = strings.Cut(expr, ".")
	return p
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	inQuote := false
	for i, c := range s {
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func matchAll(row Row, preds []predicate) bool {
	for _, p := range preds {
		if !match(row, p) {
			return false
		}
	}
	return true
}

func match(row Row, p predicate) bool {
	if len(p.or) > 0 {
		for _, alt := range p.or {
			if match(row, alt) {
				return true
			}
		}
		return false
	}
	ok := evaluate(row[p.column], p.op, p.value)
	if p.negate {
		return !ok
	}
	return ok
}

func evaluate(field interface{}, op, value string) bool {
	s, isNull := stringify(field)
	switch op {
	case "eq":
		return !isNull && s == value
	case "neq":
		return !isNull && s != value
	case "gt", "gte", "lt", "lte":
		if isNull {
			return false
		}
		c := compare(s, value)
		switch op {
		case "gt":
			return c > 0
		case "gte":
			return c >= 0
		case "lt":
			return c < 0
		default:
			return c <= 0
		}
	case "like", "ilike":
		if isNull {
			return false
		}
		pattern := regexp.QuoteMeta(value)
		pattern = strings.NewReplacer(`\*`, ".*", "%", ".*").Replace(pattern)
		if op == "ilike" {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile("^" + pattern + "$")
		return err == nil && re.MatchString(s)
	case "is":
		switch value {
		case "null":
			return isNull
		case "true", "false":
			return !isNull && s == value
		}
		return false
	case "in":
		if isNull {
			return false
		}
		list := strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
		for _, item := range splitTopLevel(list) {
			if strings.Trim(item, `"`) == s {
				return true
			}
		}
		return false
	}
	return false
}

func stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, false
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), false
	case bool:
		return strconv.FormatBool(t), false
	default:
		data, _ := json.Marshal(t)
		return string(data), false
	}
}

func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func sortRows(rows []Row, order []orderKey) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range order {
			a, aNull := stringify(rows[i][k.column])
			b, bNull := stringify(rows[j][k.column])
			if aNull != bNull {
				return bNull
			}
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func window(rows []Row, offset, limit int) []Row {
	if offset >= len(rows) {
		return []Row{}
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// =============================================================================
// GoTrue
// =============================================================================

func (f *FakeSupabase) handleAuth(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/auth/v1")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case path == "/signup" && r.Method == http.MethodPost:
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email == "" || len(req.Password) < 6 {
			writeFakeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error_code": "weak_password", "msg": "Password should be at least 6 characters"})
			return
		}
		if _, exists := f.users[req.Email]; exists {
			writeFakeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error_code": "user_already_exists", "msg": "User already registered"})
			return
		}
		u := &fakeUser{ID: uuid.NewString(), Email: req.Email, Password: req.Password}
		f.users[req.Email] = u
		writeFakeJSON(w, http.StatusOK, f.session(u))

	case path == "/token" && r.Method == http.MethodPost:
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		u, ok := f.users[req.Email]
		if !ok || u.Password != req.Password {
			writeFakeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid login credentials"})
			return
		}
		writeFakeJSON(w, http.StatusOK, f.session(u))

	case path == "/user" && r.Method == http.MethodGet:
		u := f.userForToken(r)
		if u == nil {
			writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
			return
		}
		writeFakeJSON(w, http.StatusOK, map[string]string{"id": u.ID, "email": u.Email, "role": "authenticated"})

	case path == "/logout" && r.Method == http.MethodPost:
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		delete(f.tokens, token)
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "/admin/users/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(path, "/admin/users/")
		for email, u := range f.users {
			if u.ID == id {
				delete(f.users, email)
				writeFakeJSON(w, http.StatusOK, map[string]string{})
				return
			}
		}
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"msg": "User not found"})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *FakeSupabase) session(u *fakeUser) map[string]interface{} {
	token := "token-" + u.ID
	f.tokens[token] = u.ID
	return map[string]interface{}{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + u.ID,
		"user":          map[string]string{"id": u.ID, "email": u.Email, "role": "authenticated"},
	}
}

func (f *FakeSupabase) userForToken(r *http.Request) *fakeUser {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	id, ok := f.tokens[token]
	if !ok {
		return nil
	}
	for _, u := range f.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func writeFakeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
