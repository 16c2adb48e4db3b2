// Command node runs a single cohort member: it loads the cohort config,
// wires up the consensus engine, inbox and broadcaster, and serves the
// HTTP control surface until stopped.
//
// Wiring style follows the reference's cobra-based CLIs (e.g.
// test/client_runner/main.go in the retrieved pack): a single root command
// with flag-bound package-level variables, executed and exited on error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arvidsson/benor-agreement/api"
	"github.com/arvidsson/benor-agreement/config"
	"github.com/arvidsson/benor-agreement/consensus"
	"github.com/arvidsson/benor-agreement/core"
	"github.com/arvidsson/benor-agreement/logging"
)

var (
	argConfigPath string
	argNodeID     int
	argLogLevel   string
	argRunID      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "node",
		Short: "Run one Ben-Or agreement cohort member",
		RunE:  runNode,
	}
	rootCmd.Flags().StringVar(&argConfigPath, "config", "cohort.yaml", "path to the cohort config file")
	rootCmd.Flags().IntVar(&argNodeID, "id", -1, "this node's index within the cohort")
	rootCmd.Flags().StringVar(&argLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&argRunID, "run-id", "", "run identifier shared by every node in the cohort, stamped on every log line")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	if argNodeID < 0 {
		return fmt.Errorf("--id is required")
	}

	// A node launched outside cmd/cohort (e.g. directly, for local testing)
	// still gets a run ID of its own so its logs are identifiable.
	runID := argRunID
	if runID == "" {
		runID = uuid.New().String()
	}
	logger := logging.New(os.Stderr, argLogLevel).With("node_id", argNodeID).With("run_id", runID)

	cohort, err := config.Load(argConfigPath)
	if err != nil {
		return err
	}
	spec, ok := cohort.Spec(argNodeID)
	if !ok {
		return fmt.Errorf("node id %d not present in %s", argNodeID, argConfigPath)
	}

	cfg := consensus.Config{
		N:            cohort.N(),
		F:            cohort.F(),
		NodeID:       core.NodeID(spec.ID),
		InitialValue: core.Value(spec.InitialValue),
		IsFaulty:     spec.Faulty,
	}

	state := consensus.NewNodeState(cfg)
	inbox := consensus.NewInbox()
	readiness := consensus.NewReadiness()
	broadcaster := consensus.NewHTTPBroadcaster(cfg.NodeID, cohort.PeerAddrs(), state, readiness, cfg.IsFaulty, logger)
	engine := consensus.NewEngine(cfg, state, inbox, broadcaster, logger)

	server := api.NewServer(cohort.Addr(spec.ID), cfg, state, inbox, engine, readiness, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		engine.Stop()
		return server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
