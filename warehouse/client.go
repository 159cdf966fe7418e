package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hupe1980/swarmchat/logging"
)

// ErrWriteRejected is returned for statements that could modify data while
// the client is read-only.
var ErrWriteRejected = errors.New("only read-only statements are allowed")

// ResultSet is a fully materialized query result. Every cell is rendered as
// text; SQL NULL becomes "NULL".
type ResultSet struct {
	Columns   []string
	Rows      [][]string
	Truncated bool // more rows were available than MaxRows
}

// Querier runs a query and returns its result.
type Querier interface {
	Query(ctx context.Context, query string) (*ResultSet, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// MaxRows caps the rows read from a result. Zero or less reads all rows.
	MaxRows int
	// QueryTimeout bounds each query. Zero disables the bound.
	QueryTimeout time.Duration
	// AllowWrites lets statements other than SELECT-like queries through.
	AllowWrites bool
	Logger      logging.Logger
}

// Client executes generated SQL against a database.
type Client struct {
	db   *sql.DB
	opts ClientOptions
}

var _ Querier = (*Client)(nil)

// Open opens a database with the named driver and wraps it in a Client.
func Open(driver, dsn string, optFns ...func(o *ClientOptions)) (*Client, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return NewClient(db, optFns...), nil
}

// NewClient wraps an existing database handle.
func NewClient(db *sql.DB, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		MaxRows:      1000,
		QueryTimeout: 30 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Client{db: db, opts: opts}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the underlying database.
func (c *Client) Close() error {
	return c.db.Close()
}

// Query runs query and reads its rows.
func (c *Client) Query(ctx context.Context, query string) (*ResultSet, error) {
	if !c.opts.AllowWrites && !IsReadOnly(query) {
		return nil, ErrWriteRejected
	}

	if c.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	rs := &ResultSet{Columns: cols, Rows: [][]string{}}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if c.opts.MaxRows > 0 && len(rs.Rows) >= c.opts.MaxRows {
			rs.Truncated = true
			break
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	c.opts.Logger.Debug("Query executed", "columns", len(cols), "rows", len(rs.Rows), "truncated", rs.Truncated, "duration", time.Since(start))

	return rs, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
