package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"assemblyline/internal/app"
	"assemblyline/internal/artifact"
	"assemblyline/internal/assembly"
	"assemblyline/internal/config"
)

type runFlags struct {
	fragments     string
	stack         string
	runID         string
	out           string
	preview       bool
	confirm       bool
	dryRun        bool
	skipToolchain bool
	fixAttempts   int
	jsonOut       bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.fragments, "fragments", "f", "", "fragment file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&f.stack, "stack", "", "stack id (default: file's stack, then the default stack)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id to use instead of a generated one")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "run every phase in memory only")
	cmd.Flags().BoolVar(&f.skipToolchain, "skip-toolchain", false, "skip dependency install and type check")
	cmd.Flags().IntVar(&f.fixAttempts, "fix-attempts", 0, "model-assisted fix attempts (0 uses the default)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("fragments")
}

func (f *runFlags) options(doc fragmentFile) assembly.Options {
	return assembly.Options{
		RunID:          f.runID,
		MaxFixAttempts: f.fixAttempts,
		DryRun:         f.dryRun,
		SkipToolchain:  f.skipToolchain,
		ProjectName:    doc.ProjectName,
	}
}

func (f *runFlags) stackOf(doc fragmentFile) string {
	if f.stack != "" {
		return f.stack
	}
	return doc.Stack
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Assemble fragments locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, &flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&flags.preview, "preview", false, "assemble into a scratch directory without storing anything")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "write the assembled tree to this directory")
	cmd.Flags().BoolVar(&flags.confirm, "confirm", false, "with --preview, store the preview when it completes")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	flags := runFlags{preview: true}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Assemble fragments into a scratch directory and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, &flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "write the previewed tree to this directory")
	cmd.Flags().BoolVar(&flags.confirm, "confirm", false, "store the preview when it completes")
	return cmd
}

func runLocal(cmd *cobra.Command, flags *runFlags) error {
	doc, err := loadFragments(flags.fragments, cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer a.Close()

	adapter, err := a.Engine.Adapter(flags.stackOf(doc))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if flags.preview {
		res, err := a.Engine.Preview(ctx, doc.Fragments, adapter, flags.options(doc))
		if res == nil {
			return err
		}
		if err := reportPreview(out, res, flags.jsonOut); err != nil {
			return err
		}
		if flags.out != "" {
			if err := writeTree(flags.out, res.Files); err != nil {
				return fmt.Errorf("write %s: %w", flags.out, err)
			}
		}
		if err != nil || !flags.confirm {
			return err
		}
		run, err := a.Engine.Confirm(ctx, res.ScratchHandle)
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		fmt.Fprintf(out, "confirmed %s\n", run.ID)
		return nil
	}

	run, err := a.Engine.Assemble(ctx, doc.Fragments, adapter, flags.options(doc))
	if run == nil {
		return err
	}
	if rerr := reportRun(out, run, flags.jsonOut); rerr != nil {
		return rerr
	}
	if err != nil {
		return err
	}
	if flags.out != "" && !flags.dryRun {
		files, err := a.Engine.GetFiles(ctx, run.ID)
		if err != nil {
			return err
		}
		if err := writeTree(flags.out, files); err != nil {
			return fmt.Errorf("write %s: %w", flags.out, err)
		}
	}
	if !run.Success {
		return fmt.Errorf("run %s did not succeed", run.ID)
	}
	return nil
}

func reportRun(w io.Writer, run *artifact.AssemblyRun, asJSON bool) error {
	if asJSON {
		return printJSON(w, run)
	}
	fmt.Fprintf(w, "run %s: %s success=%t files=%d\n", run.ID, run.Status, run.Success, len(run.Files))
	fmt.Fprintf(w, "  gap passes=%d synthesized=%d deduplicated=%d fix attempts=%d fixes=%d compile attempts=%d\n",
		run.GapPasses, len(run.Synthesized), len(run.Deduplicated), run.FixAttempts, run.FixesApplied, run.CompileAttempts)
	for _, cp := range run.Phases {
		fmt.Fprintf(w, "  %-22s %s\n", cp.Phase, cp.Status)
	}
	reportErrors(w, "input", run.InputErrors)
	reportErrors(w, "validation", run.ValidationErrors)
	reportErrors(w, "toolchain", run.ToolchainErrors)
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
	return nil
}

func reportPreview(w io.Writer, res *assembly.PreviewResult, asJSON bool) error {
	if asJSON {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "preview %s: %s success=%t files=%d handle=%s\n", res.RunID, res.Status, res.Success, len(res.Files), res.ScratchHandle)
	reportErrors(w, "validation", res.ValidationErrors)
	reportErrors(w, "toolchain", res.ToolchainErrors)
	if res.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", res.Error)
	}
	return nil
}

func reportErrors(w io.Writer, kind string, errs []artifact.ValidationError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s diagnostics (%d errors):\n", kind, artifact.CountErrors(errs))
	for _, e := range errs {
		loc := e.File
		if e.Line > 0 {
			loc = fmt.Sprintf("%s:%d", e.File, e.Line)
		}
		if loc == "" {
			loc = "-"
		}
		fmt.Fprintf(w, "    %-7s %s %s\n", e.Severity, loc, strings.TrimSpace(e.Message))
	}
}
