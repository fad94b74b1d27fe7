package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/flowgen/internal/blob"
	"github.com/hpungsan/flowgen/internal/client"
	"github.com/hpungsan/flowgen/internal/errors"
	"github.com/hpungsan/flowgen/internal/gallery"
	"github.com/hpungsan/flowgen/internal/ops"
	"github.com/hpungsan/flowgen/internal/preview"
	"github.com/hpungsan/flowgen/internal/upload"
	"github.com/hpungsan/flowgen/internal/watch"
	"github.com/hpungsan/flowgen/internal/web"
)

// maxSourceBytes caps source files read from disk or stdin.
const maxSourceBytes = 8 << 20

// runtime holds the dependencies shared by all commands.
type runtime struct {
	env    *ops.Env
	client *client.Client
	store  *blob.Store
	logger *slog.Logger
}

// newCLIApp creates the CLI application with all commands.
// rt may be nil when only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "flowgen",
		Usage:   "Python source to flowchart galleries",
		Version: Version,
		Commands: []*cli.Command{
			uploadCmd(rt),
			showCmd(rt),
			historyCmd(rt),
			downloadCmd(rt),
			purgeCmd(rt),
			previewCmd(rt),
			watchCmd(rt),
			serveCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Output format: json|markdown"}
}

// uploadCmd creates the upload command.
func uploadCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Submit a source file and print the resulting gallery",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "File name to submit when reading stdin"},
			&cli.StringFlag{Name: "save", Aliases: []string{"s"}, Usage: "Also write the returned archive here (.zip)"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}
			name, src, err := openSource(c.Args().First(), c.String("name"))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Upload(c.Context, rt.env, ops.UploadInput{
				Filename: name,
				Source:   strings.NewReader(src),
				SavePath: c.String("save"),
			})
			if err != nil {
				return outputError(err)
			}

			if format == "markdown" {
				return outputText(gallery.Index(rt.env.Gallery.Snapshot()))
			}
			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print the gallery of a stored upload",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Show(c.Context, rt.env, ops.ShowInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			if format == "markdown" {
				return outputText(gallery.Index(rt.env.Gallery.Snapshot()))
			}
			return outputJSON(output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List stored uploads, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum uploads to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Uploads to skip"},
			formatFlag(),
		},
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.List(rt.env.DB, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			if format == "markdown" {
				return outputText(historyMarkdown(output, time.Now()))
			}
			return outputJSON(output)
		},
	}
}

// downloadCmd creates the download command.
func downloadCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Write a stored archive to disk exactly as received",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Destination .zip (default ~/.flowgen/downloads/)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Download(rt.env.DB, rt.env.Config, ops.DownloadInput{
				ID:   c.Args().First(),
				Path: c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete stored uploads",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Delete uploads older than this (e.g., 7d, 2w, 36h)"},
			&cli.IntFlag{Name: "keep", Usage: "Keep only the newest N uploads"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{Keep: c.Int("keep")}

			if olderThan := c.String("older-than"); olderThan != "" {
				d, err := upload.ParseAge(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThan = d
			}

			output, err := ops.Purge(rt.env.DB, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// previewResult is the JSON output of the preview command.
type previewResult struct {
	Bytes       int    `json:"bytes"`
	ContentType string `json:"content_type"`
	SavedTo     string `json:"saved_to,omitempty"`
}

// previewCmd creates the preview command.
func previewCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Render one flowchart image for a source file",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the image here (extension must match the image type, usually .png)"},
		},
		Action: func(c *cli.Context) error {
			_, src, err := openSource(c.Args().First(), "preview.py")
			if err != nil {
				return outputError(err)
			}
			if strings.TrimSpace(src) == "" {
				return outputError(errors.NewInvalidRequest("source is empty"))
			}

			data, contentType, err := rt.client.Preview(c.Context, src)
			if err != nil {
				return outputError(err)
			}

			result := previewResult{Bytes: len(data), ContentType: contentType}
			if out := c.String("out"); out != "" {
				if err := ops.WriteFile(out, imageExt(contentType), data, rt.env.Config); err != nil {
					return outputError(err)
				}
				result.SavedTo = out
			}
			return outputJSON(result)
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Re-render a source file whenever it changes",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "Image written after each successful render (.png)"},
		},
		Action: func(c *cli.Context) error {
			source := c.Args().First()
			if source == "" {
				return outputError(errors.NewInvalidRequest("file is required"))
			}
			out := c.String("out")
			if err := ops.ValidatePath(out, ".png", rt.env.Config); err != nil {
				return outputError(err)
			}

			ctrl := preview.NewController(preview.Config{
				Renderer:    rt.client,
				Store:       rt.store,
				QuietPeriod: rt.env.Config.QuietPeriod(),
				Logger:      rt.logger,
			})
			defer ctrl.Close()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "watching %s (Ctrl-C to stop)\n", source)
			err := watch.Run(ctx, ctrl, watch.Options{
				Source: source,
				OnImage: func(data []byte) error {
					if err := ops.WriteFile(out, ".png", data, rt.env.Config); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "%s wrote %s (%s)\n", time.Now().Format("15:04:05"), out, humanize.Bytes(uint64(len(data))))
					return nil
				},
				OnError: func(msg string) {
					fmt.Fprintf(os.Stderr, "%s %s\n", time.Now().Format("15:04:05"), msg)
				},
				Logger: rt.logger,
			})
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(web.Options{
				Env:      rt.env,
				Store:    rt.store,
				Renderer: rt.client,
				Version:  Version,
				Bind:     c.String("bind"),
				Port:     c.Int("port"),
				Logger:   rt.logger,
			})
			if err != nil {
				return outputError(err)
			}
			if err := web.Run(c.Context, srv, rt.logger); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText writes s to stdout with a trailing newline.
func outputText(s string) error {
	_, err := fmt.Fprintln(os.Stdout, strings.TrimRight(s, "\n"))
	return err
}

// outputError formats error for CLI.
func outputError(err error) error {
	if fErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", fErr.Code, fErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseFormat validates an output format flag.
func parseFormat(s string) (string, error) {
	switch s {
	case "", "json":
		return "json", nil
	case "markdown", "md":
		return "markdown", nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want json or markdown)", s))
}

// openSource reads a source file, or stdin when path is "-" or empty and
// stdin is piped. The returned name is what the service will see.
func openSource(path, stdinName string) (string, string, error) {
	if path == "" || path == "-" {
		if !stdinHasData() {
			return "", "", errors.NewInvalidRequest("a file argument or piped stdin is required")
		}
		if stdinName == "" {
			return "", "", errors.NewInvalidRequest("--name is required when reading stdin")
		}
		src, err := readStdin(maxSourceBytes)
		if err != nil {
			return "", "", err
		}
		return stdinName, src, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", errors.NewFileNotFound(path)
		}
		return "", "", errors.NewInternal(err)
	}
	defer f.Close()
	src, err := readLimited(f, maxSourceBytes)
	if err != nil {
		return "", "", err
	}
	return path, src, nil
}

// imageExt is the file extension expected for a rendered image type.
func imageExt(contentType string) string {
	switch contentType {
	case "image/svg+xml":
		return ".svg"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, up to limit bytes.
func readStdin(limit int64) (string, error) {
	return readLimited(os.Stdin, limit)
}

func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("source exceeds %s", humanize.Bytes(uint64(limit))))
	}
	return string(data), nil
}

// historyMarkdown renders upload history as a markdown table.
func historyMarkdown(out *ops.ListOutput, now time.Time) string {
	if len(out.Items) == 0 {
		return "No uploads yet."
	}
	var b strings.Builder
	b.WriteString("| ID | Source | Images | Groups | Size | Received |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, item := range out.Items {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s | %s |\n",
			item.ID, item.SourceName, item.ImageCount, item.GroupCount,
			humanize.Bytes(uint64(item.ArchiveBytes)),
			humanize.RelTime(time.Unix(item.CreatedAt, 0), now, "ago", "from now"))
	}
	p := out.Pagination
	fmt.Fprintf(&b, "\n%d–%d of %d", p.Offset+1, p.Offset+len(out.Items), p.Total)
	return b.String()
}
