package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	// Version is set at build time via ldflags.
	Version = "v0.1.0"
	// GitCommit is set at build time via ldflags.
	GitCommit = "unknown"
)

const (
	// DefaultRepo is the GitHub repository queried by version --check.
	DefaultRepo = "compresr/messages-gateway"

	releaseCheckTimeout = 20 * time.Second
)

// releasesAPI is the GitHub API base, replaced in tests.
var releasesAPI = "https://api.github.com"

var versionFlags struct {
	check bool
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		printVersion(out)
		if !versionFlags.check {
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), releaseCheckTimeout)
		defer cancel()
		latest, err := latestRelease(ctx, &http.Client{}, releasesAPI, repo())
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		reportUpdate(out, Version, latest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionFlags.check, "check", false, "compare with the latest GitHub release")
}

func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "gateway %s\n", Version)
	_, _ = fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// repo returns the repository to check, overridable via GATEWAY_REPO.
func repo() string {
	if r := os.Getenv("GATEWAY_REPO"); r != "" {
		return r
	}
	return DefaultRepo
}

// latestRelease returns the tag name of the latest published release.
func latestRelease(ctx context.Context, client *http.Client, apiBase, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimSuffix(apiBase, "/"), repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	tag := gjson.GetBytes(body, "tag_name").String()
	if tag == "" {
		return "", fmt.Errorf("release has no tag_name")
	}
	return tag, nil
}

func reportUpdate(w io.Writer, current, latest string) {
	if current == latest {
		_, _ = fmt.Fprintf(w, "Up to date (%s)\n", current)
		return
	}
	_, _ = fmt.Fprintf(w, "Update available: %s -> %s\n", current, latest)
}
