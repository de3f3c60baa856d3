package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"provenance/internal/api"
	"provenance/internal/config"
	"provenance/internal/recordaccess"
	"provenance/internal/registry"
	"provenance/internal/services"
)

func newRecordCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRegisterCommand(ctx),
		newVerifyCommand(ctx),
		newShowCommand(ctx),
		newRecordsCommand(ctx),
	}
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "register <file>",
		Short: "Assess a file and record it in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readContentFile(args[0])
			if err != nil {
				return err
			}
			return withRecords(ctx, func(access recordaccess.Access) error {
				resp, err := access.Register(cmd.Context(), data, owner)
				if err != nil {
					return commandFailure(err)
				}
				return emit(cmd, jsonOutput, resp, func(out io.Writer) {
					if resp.Status == "alreadyRegistered" {
						fmt.Fprintf(out, "Already registered: %s\n", resp.Record.Fingerprint)
					} else {
						fmt.Fprintf(out, "Registered: %s\n", resp.Record.Fingerprint)
					}
					writeRecordDetails(out, resp.Record, shouldColorize(out))
				})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner to record the content under")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check whether a file's exact bytes are registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readContentFile(args[0])
			if err != nil {
				return err
			}
			return withRecords(ctx, func(access recordaccess.Access) error {
				resp, err := access.Verify(cmd.Context(), data)
				if err != nil {
					return commandFailure(err)
				}
				return emit(cmd, jsonOutput, resp, func(out io.Writer) {
					if resp.Record == nil {
						fmt.Fprintf(out, "No record for %s\n", resp.Fingerprint)
						return
					}
					fmt.Fprintf(out, "Match: %s\n", resp.Fingerprint)
					writeRecordDetails(out, *resp.Record, shouldColorize(out))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show the record stored under a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.TrimSpace(args[0])
			return withRecords(ctx, func(access recordaccess.Access) error {
				rec, err := access.Lookup(cmd.Context(), value)
				if errors.Is(err, registry.ErrNotFound) {
					return fmt.Errorf("no record for %s", value)
				}
				if err != nil {
					return commandFailure(err)
				}
				return emit(cmd, jsonOutput, api.RecordResponse{Record: rec}, func(out io.Writer) {
					fmt.Fprintf(out, "Record: %s\n", rec.Fingerprint)
					writeRecordDetails(out, rec, shouldColorize(out))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List an owner's records in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return withRecords(ctx, func(access recordaccess.Access) error {
				resp, err := access.ListByOwner(cmd.Context(), owner, limit)
				if err != nil {
					return commandFailure(err)
				}
				return emit(cmd, jsonOutput, resp, func(out io.Writer) {
					if len(resp.Records) == 0 {
						fmt.Fprintf(out, "No records for %s\n", resp.Owner)
						return
					}
					fmt.Fprint(out, renderTable(recordColumns, recordRows(resp.Records)))
				})
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose records to list")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to list (0 lists all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func withRecords(ctx *commandContext, fn func(recordaccess.Access) error) error {
	session, err := ctx.openRecords()
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func readContentFile(path string) ([]byte, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// commandFailure tells the user when a failure is transient.
func commandFailure(err error) error {
	if err == nil {
		return nil
	}
	if services.IsRetryable(err) {
		return fmt.Errorf("%w (temporary failure, try again)", err)
	}
	return err
}

func writeRecordDetails(out io.Writer, rec api.Record, colorize bool) {
	fields := [][2]string{
		{"Owner", rec.Owner},
		{"Sequence", strconv.FormatUint(rec.SequenceNumber, 10)},
		{"Score", verdictLabel(rec, colorize)},
		{"Model", rec.Model},
		{"Registered", rec.RegisteredAt},
		{"Storage", rec.StorageReference},
		{"Gateway", rec.GatewayURL},
		{"Supersedes", rec.Supersedes},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, field[0]+":", field[1])
	}
}

func recordRows(records []api.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatUint(rec.SequenceNumber, 10),
			shortFingerprint(rec.Fingerprint),
			strconv.FormatFloat(rec.AuthenticityScore, 'f', 2, 64),
			yesNo(rec.IsAuthentic),
			rec.RegisteredAt,
		})
	}
	return rows
}

// shortFingerprint keeps the algorithm tag and the first 16 hex digits.
func shortFingerprint(value string) string {
	algo, digest, ok := strings.Cut(value, ":")
	if !ok || len(digest) <= 16 {
		return value
	}
	return algo + ":" + digest[:16]
}
