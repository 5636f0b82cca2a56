// Package main provides the container probe for httpgate. It GETs a URL,
// by default the admin readiness endpoint, and exits 0 on a 2xx answer.
// Usage: healthcheck [url] [--timeout 5s]
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultURL = "http://localhost:9090/readyz"

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func newRootCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:          "healthcheck [url]",
		Short:        "Probe an httpgate health endpoint",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := defaultURL
			if len(args) == 1 {
				url = args[0]
			}
			client := &http.Client{Timeout: timeout}
			if err := probe(cmd.Context(), client, url); err != nil {
				return fmt.Errorf("healthcheck failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
