package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cloister/internal/model"
	"github.com/roach88/cloister/internal/store"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// CodesOptions holds flags for the codes commands.
type CodesOptions struct {
	*RootOptions
	Database   string
	ActiveOnly bool
	RetiredBy  int64
}

// NewCodesCommand creates the codes command group.
func NewCodesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Inspect and retire access codes",
		Long: `Operator access to the code store, bypassing the chat workflows.

Example:
  cloister codes list --active
  cloister codes show 0427
  cloister codes retire 0427 --by 101`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	show := &cobra.Command{
		Use:           "show <code>",
		Short:         "Show one code",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodesShow(opts, args[0], cmd)
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List codes, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodesList(opts, cmd)
		},
	}
	list.Flags().BoolVar(&opts.ActiveOnly, "active", false, "only active codes")

	retire := &cobra.Command{
		Use:           "retire <code>",
		Short:         "Retire an active code",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodesRetire(opts, args[0], cmd)
		},
	}
	retire.Flags().Int64Var(&opts.RetiredBy, "by", 0, "actor id recorded as retiring the code")

	cmd.AddCommand(show, list, retire)
	return cmd
}

func runCodesShow(opts *CodesOptions, code string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	code = model.NormalizeText(code)
	if !model.ValidCode(code) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidCode, fmt.Sprintf("%q is not a 4-digit code", code), nil)
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ac, err := st.GetCode(cmd.Context(), code)
	if err != nil {
		return reportStoreError(formatter, code, err)
	}

	if opts.Format == "json" {
		return formatter.Success(ac)
	}
	writeCode(formatter.Writer, ac)
	return nil
}

func runCodesList(opts *CodesOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	codes, err := st.ListCodes(cmd.Context(), opts.ActiveOnly)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list codes", err)
	}

	if opts.Format == "json" {
		return formatter.Success(codes)
	}
	if len(codes) == 0 {
		fmt.Fprintln(formatter.Writer, "No codes.")
		return nil
	}
	for _, ac := range codes {
		fmt.Fprintf(formatter.Writer, "%4d  %s  %-7s  %s  %s\n",
			ac.ID, ac.Code, ac.Status(), ac.CreatedAt.UTC().Format(timeLayout), ac.Owner)
	}
	return nil
}

func runCodesRetire(opts *CodesOptions, code string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	code = model.NormalizeText(code)
	if !model.ValidCode(code) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidCode, fmt.Sprintf("%q is not a 4-digit code", code), nil)
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter.VerboseLog("retiring %s as actor %d", code, opts.RetiredBy)
	ac, err := st.RetireCode(cmd.Context(), code, model.ActorID(opts.RetiredBy))
	if err != nil {
		return reportStoreError(formatter, code, err)
	}

	if opts.Format == "json" {
		return formatter.Success(ac)
	}
	fmt.Fprintf(formatter.Writer, "Code %s retired.\n", ac.Code)
	return nil
}

// reportStoreError maps store sentinels to error codes and exit codes.
func reportStoreError(f *OutputFormatter, code string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("code %s not found", code), err)
	case errors.Is(err, store.ErrAlreadyRetired):
		return f.Fail(ExitFailure, ErrCodeAlreadyRetired, fmt.Sprintf("code %s is already retired", code), err)
	default:
		return f.Fail(ExitCommandError, ErrCodeStore, "store error", err)
	}
}

func writeCode(w io.Writer, ac model.AccessCode) {
	fmt.Fprintf(w, "Code %s\n\n", ac.Code)
	fmt.Fprintf(w, "ID: %d\n", ac.ID)
	fmt.Fprintf(w, "Player: %s\n", ac.Owner)
	fmt.Fprintf(w, "Created at: %s\n", ac.CreatedAt.UTC().Format(timeLayout))
	fmt.Fprintf(w, "Created by: %d\n", ac.CreatedBy)
	fmt.Fprintf(w, "Status: %s\n", ac.Status())
	if ac.RetiredAt != nil {
		fmt.Fprintf(w, "Retired at: %s\n", ac.RetiredAt.UTC().Format(timeLayout))
		fmt.Fprintf(w, "Retired by: %d\n", ac.RetiredBy)
	}
}
