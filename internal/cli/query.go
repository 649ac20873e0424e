package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/portalgate/internal/control"
	"github.com/vietddude/portalgate/internal/core/domain"
)

var (
	opName     string
	opQuery    string
	opVars     string
	opMutation bool
	opPolicy   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send one operation through the full pipeline and print the result",
	Run:   runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&opName, "name", "", "operation name")
	queryCmd.Flags().StringVar(&opQuery, "query", "", "GraphQL document, or @file to read it from a file")
	queryCmd.Flags().StringVar(&opVars, "vars", "", "variables as a JSON object")
	queryCmd.Flags().BoolVar(&opMutation, "mutation", false, "treat the operation as a mutation")
	queryCmd.Flags().StringVar(&opPolicy, "policy", string(domain.FetchCacheFirst), "fetch policy: cache-first, network-only, no-cache")
	_ = queryCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	op, err := buildOperation(opName, opQuery, opVars, opMutation, opPolicy)
	if err != nil {
		slog.Error("Invalid operation", "error", err)
		os.Exit(2)
	}

	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	resp, err := app.Client().Send(ctx, op)
	if err != nil {
		slog.Error("Operation failed", "class", domain.ClassOf(err), "error", err)
		if domain.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "Credentials were rejected; refresh auth.token and retry.")
		}
		_ = app.Stop(ctx)
		os.Exit(1)
	}

	out := map[string]any{"data": resp.Data}
	if len(resp.Errors) > 0 {
		out["errors"] = resp.Errors
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func buildOperation(name, query, vars string, mutation bool, policy string) (domain.Operation, error) {
	if strings.HasPrefix(query, "@") {
		data, err := os.ReadFile(query[1:])
		if err != nil {
			return domain.Operation{}, fmt.Errorf("failed to read query file: %w", err)
		}
		query = string(data)
	}
	if strings.TrimSpace(query) == "" {
		return domain.Operation{}, fmt.Errorf("query is empty")
	}

	op := domain.Operation{Name: name, Query: query, Mutation: mutation}

	switch p := domain.FetchPolicy(policy); p {
	case domain.FetchCacheFirst, domain.FetchNetworkOnly, domain.FetchNoCache:
		op.Policy = p
	default:
		return domain.Operation{}, fmt.Errorf("unknown fetch policy %q", policy)
	}

	if vars != "" {
		if err := json.Unmarshal([]byte(vars), &op.Variables); err != nil {
			return domain.Operation{}, fmt.Errorf("vars must be a JSON object: %w", err)
		}
	}
	return op, nil
}
