package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagarc03/strongbox/config"
)

var presignCmd = &cobra.Command{
	Use:   "presign <bucket> <key>",
	Short: "Print a presigned download link for an existing object",
	Long: `Mint a time-limited download link for an object owned by --owner.

Examples:
  strongbox presign reports q3.csv --owner alice
  strongbox presign reports q3.csv --owner alice --minutes 60`,
	Args: cobra.ExactArgs(2),
	RunE: runPresign,
}

var (
	presignOwner   string
	presignMinutes int
)

func init() {
	presignCmd.Flags().StringVar(&presignOwner, "owner", "", "username that owns the bucket")
	presignCmd.Flags().IntVar(&presignMinutes, "minutes", 0, "link lifetime in minutes (default: service.expiry_minutes)")
	_ = presignCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(presignCmd)
}

func runPresign(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	if presignMinutes < 0 {
		return errors.New("--minutes cannot be negative")
	}

	ctx := cmd.Context()

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	link, err := a.service.PresignObject(ctx, args[0], args[1], presignOwner, presignMinutes)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), link)
	return nil
}
