package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/config"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Find and optionally remove orphan files and orphan metadata rows",
	Long: `Compare the storage root with the metadata store.

Orphan files exist on disk with no metadata row, usually left behind by a
crash between writing bytes and committing metadata. Orphan rows point at
files that no longer exist.

Without --fix the command only reports. Run it while the server is stopped.

Examples:
  # Report only
  strongbox reconcile

  # Remove orphans after confirming
  strongbox reconcile --fix

  # Remove orphans without prompting
  strongbox reconcile --fix --yes`,
	RunE: runReconcile,
}

var (
	reconcileFix      bool
	reconcileYes      bool
	reconcilePageSize int
)

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileFix, "fix", false, "remove orphan files and orphan rows")
	reconcileCmd.Flags().BoolVarP(&reconcileYes, "yes", "y", false, "do not ask for confirmation")
	reconcileCmd.Flags().IntVar(&reconcilePageSize, "page-size", strongbox.DefaultReconcilePageSize, "metadata rows read per page")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := strongbox.ReconcileOptions{PageSize: reconcilePageSize}

	report, err := a.service.Reconcile(ctx, opts)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)

	if !reconcileFix || (len(report.OrphanFiles) == 0 && len(report.OrphanObjects) == 0) {
		return nil
	}

	if !reconcileYes {
		if err := confirm(fmt.Sprintf("Remove %d orphan files and %d orphan rows", len(report.OrphanFiles), len(report.OrphanObjects))); err != nil {
			if errors.Is(err, errCancelled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			return err
		}
	}

	opts.Fix = true
	fixed, err := a.service.Reconcile(ctx, opts)
	if err != nil {
		return err
	}

	slog.Info("reconcile complete", "files_removed", fixed.FilesRemoved, "objects_removed", fixed.ObjectsRemoved)
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphan files and %d orphan rows.\n", fixed.FilesRemoved, fixed.ObjectsRemoved)
	return nil
}

func printReport(w io.Writer, report strongbox.ReconcileReport) {
	for _, f := range report.OrphanFiles {
		fmt.Fprintf(w, "orphan file\t%s/%s\t%d bytes\n", f.BucketName, f.Key, f.Size)
	}
	for _, o := range report.OrphanObjects {
		fmt.Fprintf(w, "orphan row\t%s/%s\towner=%s\n", o.BucketName, o.Key, o.OwnerName)
	}
	fmt.Fprintf(w, "%d orphan files, %d orphan rows\n", len(report.OrphanFiles), len(report.OrphanObjects))
}

func confirm(label string) error {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return errCancelled
		}
		return err
	}
	return nil
}
