package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/app"
	"rollcall/internal/logging"
	"rollcall/internal/report"
)

func newExportCmd(envFile *string) *cobra.Command {
	var eventID, format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an event roster as xlsx or pdf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			a, err := app.New(cmd.Context(), cfg, app.WithLogger(logger), app.WithoutTracing())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(cmd.Context()); cerr != nil {
					err = errors.Join(err, cerr)
				}
			}()
			if err := a.Boot(cmd.Context()); err != nil {
				return err
			}

			roster, err := report.Build(a.Service, eventID, time.Now())
			if err != nil {
				return err
			}
			payload, err := report.Render(roster, f)
			if err != nil {
				return err
			}
			if out == "" {
				out = roster.Filename(f)
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(payload)
				return err
			}
			if err := os.WriteFile(out, payload, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger.Info("roster exported", slog.String("event", eventID), slog.String("file", out), slog.Int("bytes", len(payload)))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "event id")
	cmd.Flags().StringVar(&format, "format", string(report.FormatXLSX), "xlsx or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default <date>-<title>.<format>)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}
