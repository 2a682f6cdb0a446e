package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fakto/crmbot/core/logger"
	"log/slog"
)

// Row is a single record returned by the store. Column values keep the
// JSON types produced by PostgREST.
type Row map[string]any

// String returns the column as a string, or empty when absent.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprintf("%v", v)
}

// Int returns the column as an int, or zero when absent or non-numeric.
func (r Row) Int(col string) int {
	if v, ok := r[col].(float64); ok {
		return int(v)
	}
	return 0
}

// Float returns the column as a float64, or zero when absent.
func (r Row) Float(col string) float64 {
	if v, ok := r[col].(float64); ok {
		return v
	}
	return 0
}

// ResultError is the error payload PostgREST attaches to failed operations.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *ResultError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Result carries the rows of a table operation together with the
// result-level error field the store may report instead of a transport
// failure. Callers must check both the Error field and the returned error.
type Result struct {
	Rows  []Row
	Error *ResultError
}

// Query is an in-flight table operation. Filter and projection calls
// return the same query for chaining; Execute sends it.
type Query interface {
	Select(columns string) Query
	Insert(record map[string]any) Query
	Update(fields map[string]any) Query
	Delete() Query
	Eq(column string, value any) Query
	Like(column, pattern string) Query
	Gt(column string, value any) Query
	Single() Query
	Execute(ctx context.Context) (*Result, error)
}

// Store is the table-level surface of the remote gateway, implemented by
// Client and by test fakes.
type Store interface {
	Table(name string) Query
}

type queryOp int

const (
	opSelect queryOp = iota
	opInsert
	opUpdate
	opDelete
)

type filter struct {
	column    string
	predicate string
}

type tableQuery struct {
	client  *Client
	table   string
	op      queryOp
	columns string
	filters []filter
	body    map[string]any
	single  bool
}

func (q *tableQuery) Select(columns string) Query {
	q.op = opSelect
	q.columns = columns
	return q
}

func (q *tableQuery) Insert(record map[string]any) Query {
	q.op = opInsert
	q.body = record
	return q
}

func (q *tableQuery) Update(fields map[string]any) Query {
	q.op = opUpdate
	q.body = fields
	return q
}

func (q *tableQuery) Delete() Query {
	q.op = opDelete
	return q
}

func (q *tableQuery) Eq(column string, value any) Query {
	q.filters = append(q.filters, filter{column: column, predicate: "eq." + formatValue(value)})
	return q
}

func (q *tableQuery) Like(column, pattern string) Query {
	q.filters = append(q.filters, filter{column: column, predicate: "like." + pattern})
	return q
}

func (q *tableQuery) Gt(column string, value any) Query {
	q.filters = append(q.filters, filter{column: column, predicate: "gt." + formatValue(value)})
	return q
}

func (q *tableQuery) Single() Query {
	q.single = true
	return q
}

func (q *tableQuery) Execute(ctx context.Context) (*Result, error) {
	method := http.MethodGet
	switch q.op {
	case opInsert:
		method = http.MethodPost
	case opUpdate:
		method = http.MethodPatch
	case opDelete:
		method = http.MethodDelete
	}

	values := url.Values{}
	if q.op == opSelect {
		cols := q.columns
		if cols == "" {
			cols = "*"
		}
		values.Set("select", cols)
	}
	for _, f := range q.filters {
		values.Add(f.column, f.predicate)
	}

	endpoint := q.client.baseURL + "/rest/v1/" + q.table
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var body io.Reader
	if q.body != nil {
		payload, err := json.Marshal(q.body)
		if err != nil {
			return nil, fmt.Errorf("supabase: encode %s body: %w", q.table, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("supabase: build request: %w", err)
	}
	req.Header.Set("apikey", q.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+q.client.apiKey)
	if q.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Representation is requested so mutations report affected rows,
	// which delete idempotence checks depend on.
	req.Header.Set("Prefer", "return=representation")
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	start := time.Now()
	resp, err := q.client.http.Do(req)
	if err != nil {
		logger.Error(ctx, "gateway", "table.request",
			slog.String("table", q.table),
			slog.String("op", opName(q.op)),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, fmt.Errorf("supabase: %s %s: %w", opName(q.op), q.table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("supabase: read %s response: %w", q.table, err)
	}

	if resp.StatusCode >= 400 {
		resErr := &ResultError{}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, resErr)
		}
		if resErr.Message == "" {
			resErr.Message = resp.Status
		}
		logger.Warn(ctx, "gateway", "table.error",
			slog.String("table", q.table),
			slog.String("op", opName(q.op)),
			slog.Int("http_code", resp.StatusCode),
			slog.String("err", resErr.Message),
		)
		return &Result{Error: resErr}, nil
	}

	result := &Result{}
	if len(raw) > 0 {
		if q.single {
			row := Row{}
			if err := json.Unmarshal(raw, &row); err != nil {
				return nil, fmt.Errorf("supabase: decode %s row: %w", q.table, err)
			}
			result.Rows = []Row{row}
		} else if err := json.Unmarshal(raw, &result.Rows); err != nil {
			return nil, fmt.Errorf("supabase: decode %s rows: %w", q.table, err)
		}
	}

	logger.Debug(ctx, "gateway", "table.ok",
		slog.String("table", q.table),
		slog.String("op", opName(q.op)),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", logger.Took(start)),
	)
	return result, nil
}

func opName(op queryOp) string {
	switch op {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	}
	return "select"
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprintf("%v", value)
}
