package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/WallDrop/internal/auth"
	"github.com/dharsanguruparan/WallDrop/internal/bootstrap"
	"github.com/dharsanguruparan/WallDrop/internal/config"
	"github.com/dharsanguruparan/WallDrop/internal/logging"
	"github.com/dharsanguruparan/WallDrop/internal/metadata"
	"github.com/dharsanguruparan/WallDrop/internal/model"
	"github.com/dharsanguruparan/WallDrop/internal/pipeline"
	"github.com/dharsanguruparan/WallDrop/internal/validate"
)

// withApp loads configuration, wires the backends and runs fn.
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		return err
	}
	defer logger.Sync()
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newTemplateCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the metadata sheet template",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(format) {
			case "csv":
				return writeOutput(output, metadata.TemplateCSV(), cmd.OutOrStdout())
			case "xlsx":
				data, err := metadata.TemplateXLSX()
				if err != nil {
					return err
				}
				if output == "" {
					output = "wallpaper-metadata.xlsx"
				}
				return writeOutput(output, data, cmd.OutOrStdout())
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var (
		sheet   string
		mode    string
		publish bool
		confirm bool
	)
	cmd := &cobra.Command{
		Use:   "ingest DIR",
		Short: "Upload every image in DIR, apply a metadata sheet and publish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readImages(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				out := cmd.OutOrStdout()
				sess := app.Sessions.Create()
				for _, r := range sess.Add(files) {
					if r.Error != "" {
						fmt.Fprintf(out, "skipped %s\n", r.Error)
					}
				}
				if sheet != "" {
					if err := importSheet(cmd.Context(), sess, sheet, mode, confirm, out); err != nil {
						return err
					}
				}

				events, unsubscribe := sess.Events(256)
				done := make(chan struct{})
				go func() {
					defer close(done)
					for e := range events {
						if e.Type == pipeline.EventItemStatus && e.Status != model.StatusUploading {
							item, _ := sess.Item(e.ItemID)
							fmt.Fprintf(out, "%-8s %s %s\n", e.Status, item.Source.Name, e.Error)
						}
					}
				}()
				summary, err := sess.Upload(cmd.Context())
				unsubscribe()
				<-done
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "uploaded %d, failed %d, canceled %d, not started %d\n",
					summary.Succeeded, summary.Failed, summary.Canceled, summary.NotStarted)
				if !publish || summary.Succeeded == 0 {
					return nil
				}
				res, err := sess.Publish(cmd.Context())
				fmt.Fprintf(out, "published %d, remaining %d\n", res.Published, res.Remaining)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&sheet, "metadata", "m", "", "CSV or XLSX metadata sheet")
	cmd.Flags().StringVar(&mode, "mode", "", "Import mode: warning or strict (default from config)")
	cmd.Flags().BoolVar(&publish, "publish", true, "Publish successful uploads to the catalog")
	cmd.Flags().BoolVar(&confirm, "accept-partial", false, "Apply partial filename matches without asking")
	return cmd
}

func importSheet(ctx context.Context, sess *pipeline.Session, path, mode string, acceptPartial bool, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	rows, err := metadata.Parse(filepath.Base(path), f)
	if err != nil {
		return err
	}
	var importMode validate.ImportMode
	if mode != "" {
		importMode = validate.ParseImportMode(mode)
	}
	res, err := sess.ImportRows(ctx, rows, importMode)
	for _, msg := range res.Validation.Errors {
		fmt.Fprintln(out, msg)
	}
	if err != nil {
		return err
	}
	for _, c := range res.NewCategories {
		fmt.Fprintf(out, "new category %s\n", c.Value)
	}
	fmt.Fprintln(out, res.Summary)
	for _, m := range sess.PendingMatches() {
		if _, err := sess.ConfirmPartial(m.ItemID, acceptPartial); err != nil {
			return err
		}
		verb := "ignored"
		if acceptPartial {
			verb = "applied"
		}
		fmt.Fprintf(out, "%s partial match %s -> %s\n", verb, m.Filename, m.SourceName)
	}
	return nil
}

func readImages(dir string) ([]model.SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []model.SourceFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(e.Name())))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		files = append(files, model.SourceFile{Name: e.Name(), Size: int64(len(data)), MimeType: mimeType, Data: data})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	if len(files) == 0 {
		return nil, errors.New("no files found")
	}
	return files, nil
}

func newOrphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Find stored wallpapers that are missing from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				orphans, err := app.Reconciler.Orphans(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), orphans)
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "publish [KEY...]",
			Short: "Publish orphans (all when no key is given)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(app *bootstrap.App) error {
					res, err := app.Reconciler.PublishOrphans(cmd.Context(), args)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				})
			},
		},
		&cobra.Command{
			Use:   "delete KEY...",
			Short: "Delete orphaned objects",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(app *bootstrap.App) error {
					res, err := app.Reconciler.DeleteOrphans(cmd.Context(), args)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				})
			},
		},
	)
	return cmd
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalog to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				n, err := app.Catalog.ExportXLSX(cmd.Context(), f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				app.Logger.Info("catalog exported", zap.Int("rows", n), zap.String("file", output))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "wallpapers.xlsx", "Output workbook")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Issue a bearer token signed with WALLDROP_SIGNING_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if os.Getenv("WALLDROP_SIGNING_SECRET") == "" {
				return errors.New("WALLDROP_SIGNING_SECRET must be set so the API accepts the token")
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			token, err := auth.NewSigner(cfg.SigningSecret).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default from config)")
	return cmd
}
