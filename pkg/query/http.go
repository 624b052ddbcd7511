package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rmax-ai/gfs/pkg/logging"
	"github.com/rmax-ai/gfs/pkg/retry"
	"github.com/rmax-ai/gfs/pkg/store"
)

const (
	DefaultEndpoint = "http://127.0.0.1:7474"
	DefaultDatabase = "neo4j"
)

// HTTPExecutor talks to a Neo4j-compatible HTTP transaction endpoint. Each
// call commits in its own transaction. Network errors, 5xx responses and
// transient database errors are retried.
type HTTPExecutor struct {
	endpoint string
	database string
	user     string
	password string
	http     *http.Client
	backoff  retry.Strategy
	attempts int
	log      *zap.Logger
}

// Option configures an HTTPExecutor.
type Option func(*HTTPExecutor)

func WithDatabase(db string) Option {
	return func(e *HTTPExecutor) { e.database = db }
}

func WithBasicAuth(user, password string) Option {
	return func(e *HTTPExecutor) {
		e.user = user
		e.password = password
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *HTTPExecutor) { e.http = c }
}

// WithRetry sets the number of attempts per call and the wait between them.
func WithRetry(attempts int, s retry.Strategy) Option {
	return func(e *HTTPExecutor) {
		e.attempts = attempts
		e.backoff = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *HTTPExecutor) { e.log = logging.OrNop(l) }
}

// NewHTTPExecutor returns an executor for endpoint, DefaultEndpoint if empty.
func NewHTTPExecutor(endpoint string, opts ...Option) *HTTPExecutor {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	e := &HTTPExecutor{
		endpoint: strings.TrimRight(endpoint, "/"),
		database: DefaultDatabase,
		http:     &http.Client{Timeout: 30 * time.Second},
		backoff:  retry.DefaultBackoff(),
		attempts: 3,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type txStatement struct {
	Statement          string   `json:"statement"`
	ResultDataContents []string `json:"resultDataContents"`
	IncludeStats       bool     `json:"includeStats"`
}

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []any `json:"row"`
		} `json:"data"`
		Stats *Stats `json:"stats"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, query string) (Result, error) {
	results, err := e.ExecuteAll(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, nil
	}
	return results[0], nil
}

// ExecuteAll runs statements in order inside one transaction. Either all
// of them commit or none do.
func (e *HTTPExecutor) ExecuteAll(ctx context.Context, statements ...string) ([]Result, error) {
	if len(statements) == 0 {
		return nil, fmt.Errorf("%w: no statements", ErrStatement)
	}
	req := txRequest{Statements: make([]txStatement, 0, len(statements))}
	for _, s := range statements {
		req.Statements = append(req.Statements, txStatement{
			Statement:          s,
			ResultDataContents: []string{"row"},
			IncludeStats:       true,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode statements: %w", err)
	}

	var results []Result
	start := time.Now()
	attempt := 0
	err = retry.Do(ctx, e.attempts, e.backoff, func(ctx context.Context) error {
		attempt++
		var err error
		results, err = e.commit(ctx, body)
		if err != nil {
			e.log.Warn("query_attempt_failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug("query_committed",
		zap.Int("statements", len(statements)),
		zap.Int("attempts", attempt),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func (e *HTTPExecutor) commit(ctx context.Context, body []byte) ([]Result, error) {
	url := fmt.Sprintf("%s/db/%s/tx/commit", e.endpoint, e.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: build request: %w", store.ErrBackend, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.user != "" {
		req.SetBasicAuth(e.user, e.password)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s returned %d", store.ErrBackend, url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, retry.Permanent(fmt.Errorf("%w: %s returned %d: %s", store.ErrBackend, url, resp.StatusCode, bytes.TrimSpace(msg)))
	}

	var tx txResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: decode response: %w", store.ErrBackend, err))
	}
	if len(tx.Errors) > 0 {
		first := tx.Errors[0]
		err := fmt.Errorf("%w: %s: %s", store.ErrBackend, first.Code, first.Message)
		if strings.HasPrefix(first.Code, "Neo.TransientError.") {
			return nil, err
		}
		return nil, retry.Permanent(fmt.Errorf("%w: %w", ErrStatement, err))
	}

	out := make([]Result, 0, len(tx.Results))
	for _, r := range tx.Results {
		res := Result{Columns: r.Columns, Rows: make([][]any, 0, len(r.Data)), Stats: r.Stats}
		for _, d := range r.Data {
			res.Rows = append(res.Rows, d.Row)
		}
		out = append(out, res)
	}
	return out, nil
}
