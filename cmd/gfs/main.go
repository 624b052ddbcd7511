package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rmax-ai/gfs/pkg/client"
	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/mcp"
	"github.com/rmax-ai/gfs/pkg/query"
	"github.com/rmax-ai/gfs/pkg/registry"
)

var (
	Version   = "v0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const usage = `Usage: gfs [flags] <command> [args]

Commands:
  entities                      list registered entities
  fields <entity>               list the fields of an entity
  ls <kind>                     list the ids of every resource of a kind
  get <resource-id>             print one resource
  register <kind> <file|->      register a resource from JSON
  lineage <transformation-id>   print a transformation's plan
  apply <file.cypher>           run a Cypher script in one transaction
  clean                         delete every node and relationship in the graph database
  mcp                           serve the registry over MCP on stdio
  version                       print the version
`

type options struct {
	endpoint      string
	neo4jURL      string
	neo4jDatabase string
	neo4jUser     string
	neo4jPassword string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("gfs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.endpoint, "endpoint", envOrDefault("GFS_ENDPOINT", client.DefaultEndpoint), "gfs-d address")
	fs.StringVar(&opts.neo4jURL, "neo4j", envOrDefault("GFS_NEO4J_URL", query.DefaultEndpoint), "graph database HTTP endpoint")
	fs.StringVar(&opts.neo4jDatabase, "neo4j-db", envOrDefault("GFS_NEO4J_DATABASE", query.DefaultDatabase), "graph database name")
	fs.StringVar(&opts.neo4jUser, "neo4j-user", os.Getenv("GFS_NEO4J_USER"), "graph database user")
	fs.StringVar(&opts.neo4jPassword, "neo4j-password", os.Getenv("GFS_NEO4J_PASSWORD"), "graph database password")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(stdout, usage)
		}
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := rest[0], rest[1:]

	need := func(n int, what string) error {
		if len(cmdArgs) != n {
			return fmt.Errorf("usage: gfs %s %s", cmd, what)
		}
		return nil
	}

	c := client.NewClient(opts.endpoint)
	switch cmd {
	case "entities":
		if err := need(0, ""); err != nil {
			return err
		}
		entities, err := c.ListEntities(ctx)
		if err != nil {
			return err
		}
		for _, e := range entities {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", e.ResourceID(), e.EntityType.Kind, e.EntityType.TLabel)
		}
		return nil

	case "fields":
		if err := need(1, "<entity>"); err != nil {
			return err
		}
		fields, err := c.FieldsOf(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		for _, f := range fields {
			line := fmt.Sprintf("%s\t%s", f.ResourceID(), f.ValueType)
			if f.IsDerived() {
				line += "\t" + string(f.TransformationID)
			}
			fmt.Fprintln(stdout, line)
		}
		return nil

	case "ls":
		if err := need(1, "<kind>"); err != nil {
			return err
		}
		kind := feature.Kind(cmdArgs[0])
		if !kind.Valid() {
			return fmt.Errorf("unknown resource kind %q", kind)
		}
		ids, err := c.ListIDs(ctx, kind)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(stdout, id)
		}
		return nil

	case "get":
		if err := need(1, "<resource-id>"); err != nil {
			return err
		}
		res, err := c.GetResource(ctx, feature.ResourceID(cmdArgs[0]))
		if err != nil {
			return err
		}
		return printJSON(stdout, res)

	case "register":
		if err := need(2, "<kind> <file|->"); err != nil {
			return err
		}
		data, err := readInput(cmdArgs[1], stdin)
		if err != nil {
			return err
		}
		res, err := registry.DecodeResource(feature.Kind(cmdArgs[0]), data)
		if err != nil {
			return err
		}
		id, err := c.Register(ctx, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Registered: %s\n", id)
		return nil

	case "lineage":
		if err := need(1, "<transformation-id>"); err != nil {
			return err
		}
		l, err := c.Lineage(ctx, feature.ResourceID(cmdArgs[0]))
		if err != nil {
			return err
		}
		for _, n := range l.Nodes {
			parents := make([]string, 0, len(n.Parents))
			for _, p := range n.Parents {
				parents = append(parents, fmt.Sprint(p))
			}
			fmt.Fprintf(stdout, "%d\t%s\t%s\n", n.ID, n.Kind, strings.Join(parents, ","))
		}
		return nil

	case "apply":
		if err := need(1, "<file.cypher>"); err != nil {
			return err
		}
		data, err := readInput(cmdArgs[0], stdin)
		if err != nil {
			return err
		}
		statements := query.SplitStatements(string(data))
		if len(statements) == 0 {
			return fmt.Errorf("%s: no statements", cmdArgs[0])
		}
		results, err := opts.executor().ExecuteAll(ctx, statements...)
		if err != nil {
			return err
		}
		var total query.Stats
		for _, r := range results {
			if r.Stats != nil {
				total.NodesCreated += r.Stats.NodesCreated
				total.RelationshipsCreated += r.Stats.RelationshipsCreated
				total.PropertiesSet += r.Stats.PropertiesSet
			}
		}
		fmt.Fprintf(stdout, "Applied %d statements: %d nodes, %d relationships, %d properties\n",
			len(results), total.NodesCreated, total.RelationshipsCreated, total.PropertiesSet)
		return nil

	case "clean":
		if err := need(0, ""); err != nil {
			return err
		}
		res, err := opts.executor().Execute(ctx, query.CleanQuery)
		if err != nil {
			return err
		}
		deleted := 0
		if res.Stats != nil {
			deleted = res.Stats.NodesDeleted
		}
		fmt.Fprintf(stdout, "Deleted %d nodes\n", deleted)
		return nil

	case "mcp":
		return mcp.NewServer(opts.endpoint, Version).Serve()

	case "version":
		fmt.Fprintf(stdout, "gfs %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		return nil

	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (o options) executor() *query.HTTPExecutor {
	opts := []query.Option{query.WithDatabase(o.neo4jDatabase)}
	if o.neo4jUser != "" {
		opts = append(opts, query.WithBasicAuth(o.neo4jUser, o.neo4jPassword))
	}
	return query.NewHTTPExecutor(o.neo4jURL, opts...)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
