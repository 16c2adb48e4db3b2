// Command cohort is the launcher/supervisor described as an external
// collaborator in §1/§6: it spawns one `node` process per cohort member,
// waits for every node's /status to answer, then calls /start on each
// non-faulty node.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arvidsson/benor-agreement/config"
	"github.com/arvidsson/benor-agreement/logging"
)

var (
	argConfigPath string
	argNodeBinary string
	argLogLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cohort",
		Short: "Launch a full Ben-Or agreement cohort and start it",
		RunE:  runCohort,
	}
	rootCmd.Flags().StringVar(&argConfigPath, "config", "cohort.yaml", "path to the cohort config file")
	rootCmd.Flags().StringVar(&argNodeBinary, "node-binary", "node", "path to the node executable")
	rootCmd.Flags().StringVar(&argLogLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const (
	readinessPollInterval = 100 * time.Millisecond
	readinessTimeout      = 10 * time.Second
)

func runCohort(cmd *cobra.Command, args []string) error {
	runID := uuid.New().String()
	logger := logging.New(os.Stderr, argLogLevel).With("run_id", runID)

	cohort, err := config.Load(argConfigPath)
	if err != nil {
		return err
	}

	procs := make([]*exec.Cmd, 0, cohort.N())
	for _, n := range cohort.Nodes {
		proc := exec.Command(argNodeBinary,
			"--config", argConfigPath,
			"--id", fmt.Sprintf("%d", n.ID),
			"--log-level", argLogLevel,
			"--run-id", runID,
		)
		proc.Stdout = os.Stdout
		proc.Stderr = os.Stderr
		if err := proc.Start(); err != nil {
			return fmt.Errorf("start node %d: %w", n.ID, err)
		}
		procs = append(procs, proc)
		logger.Infof("spawned node %d, pid %d", n.ID, proc.Process.Pid)
	}

	client := &http.Client{Timeout: 500 * time.Millisecond}
	for _, n := range cohort.Nodes {
		if err := waitForStatus(client, cohort.Addr(n.ID), readinessTimeout); err != nil {
			return fmt.Errorf("node %d never came up: %w", n.ID, err)
		}
	}

	for _, n := range cohort.Nodes {
		if n.Faulty {
			continue
		}
		if err := callRoute(client, cohort.Addr(n.ID), "/start"); err != nil {
			logger.Errorf("start node %d: %v", n.ID, err)
		}
	}

	for _, proc := range procs {
		_ = proc.Wait()
	}
	return nil
}

func waitForStatus(client *http.Client, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://%s/status", addr)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
		if err == nil {
			if resp, err := client.Do(req); err == nil {
				resp.Body.Close()
				return nil
			}
		}
		time.Sleep(readinessPollInterval)
	}
	return fmt.Errorf("timed out waiting for %s", addr)
}

func callRoute(client *http.Client, addr, path string) error {
	url := fmt.Sprintf("http://%s%s", addr, path)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
