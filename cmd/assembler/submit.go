package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"assemblyline/internal/server"
)

const defaultServer = "http://localhost:8081"

func newSubmitCmd() *cobra.Command {
	var (
		flags  runFlags
		remote string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send fragments to a running assembly server",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadFragments(flags.fragments, cmd.InOrStdin())
			if err != nil {
				return err
			}
			client := server.NewClient(&http.Client{Timeout: 30 * time.Minute}, remote)
			req := &server.RunRequest{Stack: flags.stackOf(doc), Fragments: doc.Fragments, Options: flags.options(doc)}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if flags.preview {
				res, err := client.Preview(ctx, req)
				if err != nil {
					return err
				}
				return reportPreview(out, res.Result, flags.jsonOut)
			}
			res, err := client.Run(ctx, req)
			if err != nil {
				return err
			}
			if err := reportRun(out, res.Run, flags.jsonOut); err != nil {
				return err
			}
			if !res.Run.Success {
				return fmt.Errorf("run %s did not succeed", res.Run.ID)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&flags.preview, "preview", false, "ask the server for a preview instead of a stored run")
	cmd.Flags().StringVar(&remote, "server", defaultServer, "assembly server base URL")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs stored by an assembly server",
	}
	cmd.PersistentFlags().StringVar(&remote, "server", defaultServer, "assembly server base URL")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := server.NewClient(nil, remote).ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range res.Runs {
				fmt.Fprintf(out, "%s  %-10s %-10s %-9s success=%t files=%d  %s\n",
					r.ID, r.Stack, r.Mode, r.Status, r.Success, r.Files, r.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	var jsonOut bool
	get := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := server.NewClient(nil, remote).GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return reportRun(cmd.OutOrStdout(), res.Run, jsonOut)
		},
	}
	get.Flags().BoolVar(&jsonOut, "json", false, "print the run as JSON")

	var outDir string
	files := &cobra.Command{
		Use:   "files <run-id>",
		Short: "Download a run's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := server.NewClient(nil, remote).GetFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outDir == "" {
				for _, f := range res.Files {
					fmt.Fprintln(cmd.OutOrStdout(), f.Path)
				}
				return nil
			}
			return writeTree(outDir, res.Files)
		},
	}
	files.Flags().StringVarP(&outDir, "out", "o", "", "write the files to this directory instead of listing them")

	cmd.AddCommand(list, get, files)
	return cmd
}
