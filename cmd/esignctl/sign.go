package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"esign-orchestrator/core/gate"
	"esign-orchestrator/core/models"
	"esign-orchestrator/core/monitoring"
	"esign-orchestrator/core/orchestrator"
	"esign-orchestrator/core/progress"
	"esign-orchestrator/core/provider"
	"esign-orchestrator/core/repository"
	"esign-orchestrator/core/spec"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	signManifest string
	signStamp    bool
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a document, and optionally stamp it, from a run manifest",
	Long: `Sign a document described by a YAML run manifest and wait for the
provider to finish. Production runs ask for confirmation before each
billable submission. Ctrl-C cancels the run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := spec.LoadRunSpec(signManifest)
		if err != nil {
			return err
		}
		if signStamp {
			req.AlsoStamp = true
		}

		out := cmd.OutOrStdout()
		orch := newSignOrchestrator(gate.NewPromptConfirmer(os.Stdin, out))

		run, err := orch.Start(ctx, *req, progressPrinter(out))
		if err != nil {
			return err
		}

		select {
		case <-run.Done():
		case <-ctx.Done():
			logger.Info("esignctl.interrupted", zap.String("run_id", run.ID))
			run.Cancel()
			<-run.Done()
		}

		outcome := run.Snapshot().Outcome
		printOutcome(out, outcome, orch.BillableSubmissions(run.ID))
		return outcomeErr(outcome)
	},
}

func init() {
	signCmd.Flags().StringVarP(&signManifest, "manifest", "f", "", "path to the run manifest (YAML)")
	signCmd.Flags().BoolVar(&signStamp, "stamp", false, "also stamp the signed document")
	signCmd.MarkFlagRequired("manifest")
}

// newSignOrchestrator builds a single-run orchestrator from the loaded
// config. Billable submissions are tracked so the summary can report them.
func newSignOrchestrator(confirmer gate.Confirmer) *orchestrator.Orchestrator {
	providerOpts := cfg.ProviderOptions(logger)
	return orchestrator.New(
		gate.New(resolver, confirmer, logger),
		func(env models.EnvironmentConfig) orchestrator.JobClient {
			return provider.New(env, providerOpts...)
		},
		nil,
		repository.NewEventRepository(),
		monitoring.NewCostTracker(),
		nil,
		logger,
		cfg.Orchestration(),
	)
}

func progressPrinter(w io.Writer) progress.Sink {
	// Animation ticks only move the percentage; print message changes.
	var last models.ProgressState
	return progress.SinkFunc(func(s models.ProgressState) {
		if s.Message == last.Message && s.Phase == last.Phase {
			return
		}
		last = s
		fmt.Fprintf(w, "[%3d%%] step %d/4  %s\n", s.Percentage, s.Step, s.Message)
	})
}

func printOutcome(w io.Writer, o *models.Outcome, billable map[string]int) {
	if o == nil {
		return
	}
	fmt.Fprintf(w, "outcome: %s\n", o.Kind)
	if o.SignedRef != "" {
		fmt.Fprintf(w, "signed:  %s\n", o.SignedRef)
	}
	if o.StampedRef != "" {
		fmt.Fprintf(w, "stamped: %s\n", o.StampedRef)
	}
	if o.StampSkipped {
		fmt.Fprintln(w, "stamp skipped")
	}
	if o.StampErr != nil {
		fmt.Fprintf(w, "stamp error: %v\n", o.StampErr)
	}
	if len(billable) > 0 {
		parts := make([]string, 0, len(billable))
		for kind, n := range billable {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
		fmt.Fprintf(w, "billable submissions: %s\n", strings.Join(parts, " "))
	}
}

func outcomeErr(o *models.Outcome) error {
	if o == nil {
		return errors.New("run finished without an outcome")
	}
	switch o.Kind {
	case models.OutcomeFailed, models.OutcomeCancelled, models.OutcomeDeclined:
		return o.Err
	}
	return nil
}
