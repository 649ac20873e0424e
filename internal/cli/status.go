package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/portalgate/internal/health"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show health and pending retries of a running pipeline",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "base URL of the health server (default http://localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := statusAddr
	if addr == "" {
		cfg := loadConfig()
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, retries, err := fetchStatus(ctx, http.DefaultClient, addr)
	if err != nil {
		slog.Error("Failed to fetch status", "addr", addr, "error", err)
		os.Exit(1)
	}
	printStatus(os.Stdout, report, retries)
}

func fetchStatus(ctx context.Context, client *http.Client, addr string) (health.Report, health.RetriesResponse, error) {
	var report health.Report
	var retries health.RetriesResponse

	base := strings.TrimRight(addr, "/")
	if err := getJSON(ctx, client, base+"/health/detailed", &report); err != nil {
		return report, retries, err
	}
	if err := getJSON(ctx, client, base+"/debug/retries", &retries); err != nil {
		return report, retries, err
	}
	return report, retries, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func printStatus(out io.Writer, report health.Report, retries health.RetriesResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tCACHE\tLIFECYCLE\tINVALIDATIONS\tRETRYING")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
		report.Status, report.CacheBackend, report.Lifecycle, report.Invalidations, retries.Count)
	_ = w.Flush()

	if e := report.Endpoint; e != nil {
		_, _ = fmt.Fprintf(out, "\nendpoint: %s (%d attempts, %.0f%% errors, avg %v)\n",
			e.Status, e.Attempts, e.ErrorRate*100, e.AverageLatency.Round(time.Millisecond))
	}
	if report.CacheError != "" {
		_, _ = fmt.Fprintf(out, "\ncache error: %s\n", report.CacheError)
	}
	if retries.Count == 0 {
		return
	}

	keys := make([]string, 0, len(retries.Entries))
	for k := range retries.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "OPERATION\tRETRIES\tOUTSTANDING\tUPDATED")
	for _, k := range keys {
		e := retries.Entries[k]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", k, e.Attempts, e.Outstanding(), e.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
