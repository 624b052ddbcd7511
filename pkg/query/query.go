// Package query runs graph queries against a graph database.
package query

import (
	"context"
	"errors"
	"strings"
)

// ErrStatement reports a query the database rejected as invalid. It is
// never retried.
var ErrStatement = errors.New("statement rejected")

// Stats counts what a write query changed.
type Stats struct {
	ContainsUpdates      bool `json:"contains_updates"`
	NodesCreated         int  `json:"nodes_created"`
	NodesDeleted         int  `json:"nodes_deleted"`
	RelationshipsCreated int  `json:"relationships_created"`
	RelationshipsDeleted int  `json:"relationships_deleted"`
	PropertiesSet        int  `json:"properties_set"`
	LabelsAdded          int  `json:"labels_added"`
	LabelsRemoved        int  `json:"labels_removed"`
}

// Result is the outcome of one statement: rows for a read, Stats for a
// write, or both.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Stats   *Stats   `json:"stats,omitempty"`
}

// Executor runs graph queries. Implementations are safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, query string) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, query string) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, query string) (Result, error) {
	return f(ctx, query)
}

// CleanQuery deletes every node and relationship.
const CleanQuery = "MATCH (n) DETACH DELETE n"

// SplitStatements splits a script on semicolons outside quotes, backticks,
// line comments (//) and block comments (/* */), dropping comments and
// blank statements. An unterminated block comment runs to the end.
func SplitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	runes := []rune(script)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == '\\' && quote != '`' && i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
			} else if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++
			cur.WriteRune(' ')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
