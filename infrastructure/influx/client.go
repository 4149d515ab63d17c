// Package influx executes validated InfluxQL against an InfluxDB 1.x server.
package influx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/resilience"
)

// Config holds connection settings.
type Config struct {
	Protocol   string
	Host       string
	Port       int
	Username   string
	Password   string
	Timeout    time.Duration
	RetryMax   int
	RetryDelay time.Duration
	UserAgent  string
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		Protocol:   "http",
		Host:       "localhost",
		Port:       8086,
		Timeout:    15 * time.Second,
		RetryMax:   3,
		RetryDelay: 500 * time.Millisecond,
		UserAgent:  "influx-mcp",
	}
}

// Addr returns the base URL of the server.
func (c Config) Addr() string {
	protocol := c.Protocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s", protocol, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// Client implements query.Executor over the InfluxDB HTTP API.
type Client struct {
	cfg      Config
	http     client.Client
	executor *resilience.Executor[[]query.Series]
}

var _ query.Executor = (*Client)(nil)

// New creates a client. No request is made until the first call.
func New(cfg Config, opts ...resilience.Option) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	hc, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:      cfg.Addr(),
		Username:  cfg.Username,
		Password:  cfg.Password,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, query.NewConnectionError(cfg.Host, cfg.Port, err)
	}

	base := []resilience.Option{
		resilience.WithRetries(cfg.RetryMax),
		resilience.WithRetryDelay(cfg.RetryDelay),
		resilience.WithRetryable(query.IsRetryable),
	}
	return &Client{
		cfg:      cfg,
		http:     hc,
		executor: resilience.NewExecutorWithOptions[[]query.Series](append(base, opts...)...),
	}, nil
}

// Execute runs text against database with retries on transient failures.
func (c *Client) Execute(ctx context.Context, text, database string, opts query.ExecOptions) ([]query.Series, error) {
	start := time.Now()
	series, err := c.executor.Execute(ctx, func(ctx context.Context) ([]query.Series, error) {
		return c.execute(ctx, text, database, opts)
	})
	if err != nil {
		logging.Debug().
			Add(logging.Component("influx")).
			Add(logging.Database(database)).
			Add(logging.Query(text)).
			Add(logging.ErrorCode(err)).
			Add(logging.ErrorField(err)).
			Msg("query failed")
		return nil, c.normalize(err)
	}
	logging.Debug().
		Add(logging.Component("influx")).
		Add(logging.Database(database)).
		Add(logging.Query(text)).
		Add(logging.Duration(time.Since(start))).
		Add(logging.Int("series", len(series))).
		Msg("query executed")
	return series, nil
}

func (c *Client) execute(ctx context.Context, text, database string, opts query.ExecOptions) ([]query.Series, error) {
	q := client.Query{
		Command:   text,
		Database:  database,
		Precision: opts.Epoch,
	}
	if opts.ChunkSize > 0 {
		q.Chunked = true
		q.ChunkSize = opts.ChunkSize
	}

	type outcome struct {
		resp *client.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := c.http.Query(q)
		done <- outcome{resp: resp, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return nil, c.classify(ctx.Err(), database)
	case out = <-done:
	}

	if out.err != nil {
		return nil, c.classify(out.err, database)
	}
	if out.resp == nil {
		return nil, query.NewExecutionError("empty response from server")
	}
	if msg := out.resp.Err; msg != "" {
		return nil, c.classifyMessage(msg, database)
	}

	// Chunks of one statement share its ID; a second ID means the text held
	// more than one statement.
	var series []query.Series
	for _, r := range out.resp.Results {
		if r.Err != "" {
			return nil, c.classifyMessage(r.Err, database)
		}
		if r.StatementId != out.resp.Results[0].StatementId {
			return nil, query.NewValidationError("response holds more than one statement",
				map[string]any{"statement_id": r.StatementId})
		}
		series = append(series, fromRows(r.Series)...)
	}
	return MergeSeries(series), nil
}

// Ping checks connectivity and reports the server version.
func (c *Client) Ping(ctx context.Context) (query.PingResult, error) {
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return query.PingResult{}, query.NewTimeoutError(c.cfg.Timeout, ctx.Err())
	}

	rtt, version, err := c.http.Ping(timeout)
	if err != nil {
		return query.PingResult{OK: false}, c.classify(err, "")
	}
	return query.PingResult{OK: true, Version: version, RTT: rtt}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// BreakerState reports the circuit breaker state for diagnostics.
func (c *Client) BreakerState() string {
	return fmt.Sprint(c.executor.CircuitBreakerState())
}

var statusPattern = regexp.MustCompile(`status(?: code)?:? (\d{3})`)

// classify maps a transport-level failure onto the error taxonomy.
func (c *Client) classify(err error, database string) error {
	var qe *query.Error
	if errors.As(err, &qe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return query.NewTimeoutError(c.cfg.Timeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return query.NewTimeoutError(c.cfg.Timeout, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return query.NewConnectionError(c.cfg.Host, c.cfg.Port, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return query.NewConnectionError(c.cfg.Host, c.cfg.Port, err)
	}

	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		return c.classifyStatus(status, database, err)
	}
	return &query.Error{Code: query.CodeExecution, Message: err.Error(), Err: err}
}

func (c *Client) classifyStatus(status int, database string, cause error) error {
	switch status {
	case 401, 403:
		e := query.NewConnectionError(c.cfg.Host, c.cfg.Port, cause)
		e.Message = "Authentication failed"
		e.Details["status"] = status
		return e
	case 404:
		return query.NewDatabaseNotFoundError(database, fmt.Sprintf("database %q not found", database))
	default:
		return query.NewHTTPError(status, cause)
	}
}

// classifyMessage maps an error string embedded in a response body.
func (c *Client) classifyMessage(msg, database string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "database not found"):
		return query.NewDatabaseNotFoundError(database, msg)
	case strings.Contains(lower, "authorization failed"),
		strings.Contains(lower, "authentication"):
		e := query.NewConnectionError(c.cfg.Host, c.cfg.Port, errors.New(msg))
		e.Message = "Authentication failed"
		return e
	case strings.Contains(lower, "timeout"):
		return query.NewTimeoutError(c.cfg.Timeout, errors.New(msg))
	default:
		return query.NewExecutionError(msg)
	}
}

// normalize turns errors raised by the resilience layer itself, such as an
// open circuit, into connection errors.
func (c *Client) normalize(err error) error {
	var qe *query.Error
	if errors.As(err, &qe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return query.NewTimeoutError(c.cfg.Timeout, err)
	}
	return query.NewConnectionError(c.cfg.Host, c.cfg.Port, err)
}
