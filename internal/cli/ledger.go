package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultLedgerLimit bounds `ledger list` output.
const DefaultLedgerLimit = 20

// LedgerOptions holds flags for the ledger commands.
type LedgerOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the distribution ledger",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List the most recent distributions, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerList(opts, cmd)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", DefaultLedgerLimit, "maximum number of records (0 for all)")

	cmd.AddCommand(list)
	return cmd
}

func runLedgerList(opts *LedgerOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "limit must not be negative", nil)
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListLedger(cmd.Context(), opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list ledger", err)
	}

	if opts.Format == "json" {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No distributions recorded.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(formatter.Writer, "%4d  %s  %s  %s  (by %s)\n",
			r.ID, r.RecordedAt.UTC().Format(timeLayout), r.Nickname, r.Quantity, r.RecordedByName)
	}
	return nil
}
