package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DatabaseClient handles Supabase Database (PostgREST) operations.
type DatabaseClient struct {
	client *Client
}

// From starts a query builder for a table.
func (d *DatabaseClient) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client:  d.client,
		table:   table,
		method:  "GET",
		columns: "*",
		filters: make([]string, 0),
		headers: make(map[string]string),
	}
}

// =============================================================================
// Query Builder
// =============================================================================

// QueryBuilder builds and executes one PostgREST request against one table.
type QueryBuilder struct {
	client    *Client
	table     string
	method    string
	columns   string
	filters   []string
	orders    []string
	limitVal  *int
	offsetVal *int
	body      []byte
	bodyErr   error
	headers   map[string]string
	single    bool
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.method = "GET"
	q.columns = columns
	return q
}

// Insert inserts one record or a slice of records.
func (q *QueryBuilder) Insert(data interface{}) *QueryBuilder {
	q.method = "POST"
	q.setBody(data)
	q.headers["Prefer"] = "return=representation"
	return q
}

// Update patches every row matching the filters.
func (q *QueryBuilder) Update(data interface{}) *QueryBuilder {
	q.method = "PATCH"
	q.setBody(data)
	q.headers["Prefer"] = "return=representation"
	return q
}

// Delete deletes every row matching the filters.
func (q *QueryBuilder) Delete() *QueryBuilder {
	q.method = "DELETE"
	q.headers["Prefer"] = "return=representation"
	return q
}

func (q *QueryBuilder) setBody(data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		q.bodyErr = fmt.Errorf("marshal body: %w", err)
		return
	}
	q.body = body
}

// =============================================================================
// Filters
// =============================================================================

func (q *QueryBuilder) addFilter(column string, op FilterOperator, value string) *QueryBuilder {
	q.filters = append(q.filters, column+"="+url.QueryEscape(string(op)+"."+value))
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpEq, fmt.Sprintf("%v", value))
}

// Neq adds a not-equal filter.
func (q *QueryBuilder) Neq(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpNeq, fmt.Sprintf("%v", value))
}

// Gt adds a greater-than filter.
func (q *QueryBuilder) Gt(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpGt, fmt.Sprintf("%v", value))
}

// Gte adds a greater-than-or-equal filter.
func (q *QueryBuilder) Gte(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpGte, fmt.Sprintf("%v", value))
}

// Lt adds a less-than filter.
func (q *QueryBuilder) Lt(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpLt, fmt.Sprintf("%v", value))
}

// Lte adds a less-than-or-equal filter.
func (q *QueryBuilder) Lte(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpLte, fmt.Sprintf("%v", value))
}

// ILike adds a case-insensitive pattern filter. Use * or % as wildcard.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.addFilter(column, OpILike, pattern)
}

// Is adds an IS filter (for null, true, false).
func (q *QueryBuilder) Is(column string, value interface{}) *QueryBuilder {
	return q.addFilter(column, OpIs, fmt.Sprintf("%v", value))
}

// In adds an IN filter.
func (q *QueryBuilder) In(column string, values []string) *QueryBuilder {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteListValue(v)
	}
	return q.addFilter(column, OpIn, "("+strings.Join(quoted, ",")+")")
}

// Or adds an OR filter group, e.g. "preferred_date.eq.2024-06-03,actual_date.eq.2024-06-03".
func (q *QueryBuilder) Or(filters string) *QueryBuilder {
	q.filters = append(q.filters, "or="+url.QueryEscape("("+filters+")"))
	return q
}

// quoteListValue quotes values containing PostgREST reserved characters.
func quoteListValue(v string) string {
	if strings.ContainsAny(v, ",.:()\" ") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

// =============================================================================
// Ordering and Pagination
// =============================================================================

// Order adds an order clause.
func (q *QueryBuilder) Order(column string, opts ...OrderDirection) *QueryBuilder {
	dir := OrderAsc
	if len(opts) > 0 {
		dir = opts[0]
	}
	q.orders = append(q.orders, fmt.Sprintf("%s.%s", column, dir))
	return q
}

// Limit sets the maximum number of rows.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limitVal = &n
	return q
}

// Offset sets the number of rows to skip.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offsetVal = &n
	return q
}

// Range selects rows from..to inclusive via the Range header.
func (q *QueryBuilder) Range(from, to int) *QueryBuilder {
	q.headers["Range"] = fmt.Sprintf("%d-%d", from, to)
	q.headers["Range-Unit"] = "items"
	return q
}

// Page is Range expressed as limit/offset.
func (q *QueryBuilder) Page(limit, offset int) *QueryBuilder {
	if limit <= 0 {
		return q
	}
	return q.Range(offset, offset+limit-1)
}

// Single expects exactly one row; zero rows yields ErrNotFound.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	q.headers["Accept"] = "application/vnd.pgrst.object+json"
	return q
}

// =============================================================================
// Execution
// =============================================================================

// Execute executes the query and returns raw bytes.
func (q *QueryBuilder) Execute(ctx context.Context) ([]byte, error) {
	if q.bodyErr != nil {
		return nil, q.bodyErr
	}

	respBody, statusCode, err := q.client.request(ctx, q.method, q.buildURL(), q.body, q.headers)
	if err != nil {
		return nil, err
	}

	if statusCode >= 400 {
		return nil, parseError(respBody, statusCode)
	}

	return respBody, nil
}

// ExecuteInto executes the query and unmarshals into dest.
func (q *QueryBuilder) ExecuteInto(ctx context.Context, dest interface{}) error {
	data, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// buildURL builds the request URL.
func (q *QueryBuilder) buildURL() string {
	urlStr := q.client.restURL + "/" + url.PathEscape(q.table)

	params := make([]string, 0, len(q.filters)+4)

	if q.method == "GET" && q.columns != "" {
		params = append(params, "select="+url.QueryEscape(q.columns))
	}

	params = append(params, q.filters...)

	if len(q.orders) > 0 {
		params = append(params, "order="+strings.Join(q.orders, ","))
	}

	if q.limitVal != nil {
		params = append(params, fmt.Sprintf("limit=%d", *q.limitVal))
	}

	if q.offsetVal != nil {
		params = append(params, fmt.Sprintf("offset=%d", *q.offsetVal))
	}

	if len(params) > 0 {
		urlStr += "?" + strings.Join(params, "&")
	}

	return urlStr
}

// =============================================================================
// Typed helpers
// =============================================================================

// List executes q and decodes the result rows.
func List[T any](ctx context.Context, q *QueryBuilder) ([]T, error) {
	rows := make([]T, 0)
	if err := q.ExecuteInto(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// One executes q as a single-row fetch.
func One[T any](ctx context.Context, q *QueryBuilder) (*T, error) {
	var row T
	if err := q.Single().ExecuteInto(ctx, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// First executes a write (insert/update/delete) and returns the first
// represented row. An empty representation means no row matched.
func First[T any](ctx context.Context, q *QueryBuilder) (*T, error) {
	rows, err := List[T](ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// Distinct selects column and returns its distinct non-empty values, sorted.
func Distinct(ctx context.Context, q *QueryBuilder, column string) ([]string, error) {
	rows, err := List[map[string]interface{}](ctx, q.Select(column))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		v, ok := row[column].(string)
		if !ok || v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
