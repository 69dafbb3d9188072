// Command trigger asks a running water-quality server to recompute one day's prediction.
//
// Usage:
//
//	go run ./cmd/trigger -addr http://localhost:8000 -date 2024-01-10
//
// Without -date the server picks yesterday in its reference zone. The exit
// code is 0 when a prediction was stored or the day had no readings, 2 when
// another run was in flight and 1 otherwise.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitBusy   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8000", "base URL of the water-quality server")
	date := fs.String("date", "", "day to recompute as YYYY-MM-DD (default: yesterday on the server)")
	timeout := fs.Duration("timeout", 2*time.Minute, "how long to wait for the run")
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}

	if *date != "" {
		if _, err := entities.ParseDay(*date); err != nil {
			fmt.Fprintf(stderr, "invalid -date: %v\n", err)
			return exitFailed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := trigger(ctx, http.DefaultClient, *addr, *date)
	if err != nil {
		fmt.Fprintf(stderr, "trigger failed: %v\n", err)
		return exitFailed
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "failed to print result: %v\n", err)
	}

	switch res.Status {
	case entities.RunCompleted, entities.RunNoData:
		return exitOK
	case entities.RunBusy:
		return exitBusy
	default:
		return exitFailed
	}
}

func trigger(ctx context.Context, client *http.Client, addr, date string) (entities.RunResult, error) {
	u, err := url.Parse(strings.TrimRight(addr, "/") + "/api/predictions/trigger")
	if err != nil {
		return entities.RunResult{}, fmt.Errorf("invalid -addr: %w", err)
	}
	if date != "" {
		u.RawQuery = url.Values{"date": {date}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return entities.RunResult{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return entities.RunResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return entities.RunResult{}, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict, http.StatusInternalServerError:
	default:
		return entities.RunResult{}, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var res entities.RunResult
	if err := json.Unmarshal(body, &res); err != nil || res.Status == "" {
		return entities.RunResult{}, fmt.Errorf("unexpected response (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return res, nil
}
