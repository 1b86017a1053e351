// File: cmd/render.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/prerender/internal/config"
	"github.com/xkilldash9x/prerender/internal/observability"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"github.com/xkilldash9x/prerender/pkg/hydrate"
)

// stdinName is the input argument that reads the document from stdin.
const stdinName = "-"

// renderFlagKeys maps each render flag to the config key it overrides.
var renderFlagKeys = map[string]string{
	"url":                             "hydrate.url",
	"title":                           "hydrate.title",
	"language":                        "hydrate.language",
	"direction":                       "hydrate.direction",
	"cookie":                          "hydrate.cookie",
	"referrer":                        "hydrate.referrer",
	"user-agent":                      "hydrate.user_agent",
	"resources-url":                   "hydrate.resources_url",
	"canonical-url":                   "hydrate.canonical_url",
	"timeout":                         "hydrate.timeout",
	"max-hydrate-count":               "hydrate.max_hydrate_count",
	"exclude":                         "hydrate.exclude_components",
	"static":                          "hydrate.static_components",
	"constrain-timeouts":              "hydrate.constrain_timeouts",
	"annotations":                     "hydrate.client_hydrate_annotations",
	"remove-scripts":                  "hydrate.remove_scripts",
	"remove-unused-styles":            "hydrate.remove_unused_styles",
	"runtime-logging":                 "hydrate.runtime_logging",
	"pretty":                          "serialize.pretty_html",
	"line-width":                      "serialize.approximate_line_width",
	"remove-attribute-quotes":         "serialize.remove_attribute_quotes",
	"remove-boolean-attribute-quotes": "serialize.remove_boolean_attribute_quotes",
	"remove-empty-attributes":         "serialize.remove_empty_attributes",
	"remove-html-comments":            "serialize.remove_html_comments",
	"concurrency":                     "render.concurrency",
	"output-dir":                      "render.output_dir",
	"json":                            "render.json",
}

// renderOutput is one rendered input, as written with --json.
type renderOutput struct {
	Input   string           `json:"input"`
	Results *hydrate.Results `json:"results"`
}

// newRenderCmd creates and configures the `render` command.
func newRenderCmd() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render [files...]",
		Short: "Hydrates and serializes html documents",
		Long: `Render hydrates every registered custom element of each input document and
writes the serialized result. With no files, or with "-", the document is read
from stdin. Documents are rendered concurrently; output keeps argument order.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their config keys so flags override the config
			// file and environment.
			for flag, key := range renderFlagKeys {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("failed to bind --%s: %w", flag, err)
				}
			}
			return nil
		},
		RunE: runRender,
	}

	defaults := config.NewDefaultConfig()
	hc, sc, rc := defaults.Hydrate(), defaults.Serialize(), defaults.Render()

	f := renderCmd.Flags()
	f.String("url", "", "document url (location.href)")
	f.String("title", "", "replace the document title")
	f.String("language", "", "lang attribute of <html>")
	f.String("direction", "", "dir attribute of <html>")
	f.String("cookie", "", "document.cookie")
	f.String("referrer", "", "document.referrer")
	f.String("user-agent", "", "navigator.userAgent")
	f.String("resources-url", "", "base url for component resources")
	f.String("canonical-url", "", `canonical link href; "" removes the link`)
	f.Duration("timeout", hc.Timeout, "hydration deadline per document")
	f.Int("max-hydrate-count", hc.MaxHydrateCount, "maximum components rendered per document")
	f.StringSlice("exclude", nil, "component tags left untouched")
	f.StringSlice("static", nil, "component tags rendered without client annotations")
	f.Bool("constrain-timeouts", hc.ConstrainTimeouts, "fire every timer after 1ms and intervals once")
	f.Bool("annotations", hc.ClientHydrateAnnotations, "write client hydration annotations")
	f.Bool("remove-scripts", hc.RemoveScripts, "drop <script> elements from the output")
	f.Bool("remove-unused-styles", hc.RemoveUnusedStyles, "drop css rules no element can match")
	f.Bool("runtime-logging", hc.RuntimeLogging, "log diagnostics and console output as they happen")
	f.Bool("pretty", sc.PrettyHTML, "indent and wrap the output")
	f.Int("line-width", sc.ApproximateLineWidth, "approximate line width for --pretty")
	f.Bool("remove-attribute-quotes", sc.RemoveAttributeQuotes, "unquote attribute values where possible")
	f.Bool("remove-boolean-attribute-quotes", sc.RemoveBooleanAttributeQuotes, "write boolean attributes bare")
	f.Bool("remove-empty-attributes", sc.RemoveEmptyAttributes, "drop empty class, id, lang, dir, name and title")
	f.Bool("remove-html-comments", sc.RemoveHTMLComments, "drop comments other than hydration annotations")
	f.IntP("concurrency", "j", rc.Concurrency, "documents rendered at once")
	f.StringP("output-dir", "o", "", "write each document to this directory instead of stdout")
	f.Bool("json", rc.JSON, "write full results as JSON lines instead of html")

	return renderCmd
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.GetLogger()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := cfg.SerializeOptions()
	if cmd.Flags().Changed("canonical-url") && cfg.HydrateCfg.CanonicalURL == "" {
		remove := ""
		opts.CanonicalURL = &remove
	}

	inputs := args
	if len(inputs) == 0 {
		inputs = []string{stdinName}
	}
	if countStdin(inputs) > 1 {
		return fmt.Errorf("stdin can only be read once")
	}
	if cfg.RenderCfg.OutputDir != "" && !cfg.RenderCfg.JSON {
		if err := checkOutputNames(inputs); err != nil {
			return err
		}
	}

	h := hydrate.New(Registry, logger)
	outputs := make([]renderOutput, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.RenderCfg.Concurrency)
	for i, input := range inputs {
		g.Go(func() error {
			res, err := renderInput(gctx, h, input, cmd.InOrStdin(), opts)
			if err != nil {
				return err
			}
			outputs[i] = renderOutput{Input: input, Results: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, out := range outputs {
		if !cfg.HydrateCfg.RuntimeLogging {
			logDiagnostics(logger, out)
		}
		if out.Results.HasErrors() {
			failed++
		}
		if err := writeOutput(cmd.OutOrStdout(), cfg.RenderCfg, out); err != nil {
			return err
		}
	}

	logger.Info("Render finished.", zap.Int("documents", len(outputs)), zap.Int("with_errors", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) rendered with errors", failed, len(outputs))
	}
	return nil
}

func renderInput(ctx context.Context, h *hydrate.Hydrator, input string, stdin io.Reader, opts hydrate.SerializeOptions) (*hydrate.Results, error) {
	markup, err := readInput(input, stdin)
	if err != nil {
		return nil, err
	}
	res, err := h.RenderToString(ctx, markup, &opts)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", displayName(input), err)
	}
	return res, nil
}

func readInput(input string, stdin io.Reader) (string, error) {
	if input == stdinName {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	path, err := homedir.Expand(input)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", input, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", input, err)
	}
	return string(data), nil
}

func writeOutput(stdout io.Writer, rc config.RenderConfig, out renderOutput) error {
	if rc.JSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(stdout)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode results for %s: %w", displayName(out.Input), err)
		}
		return nil
	}

	if rc.OutputDir == "" {
		_, err := io.WriteString(stdout, out.Results.HTML+"\n")
		return err
	}

	dir, err := homedir.Expand(rc.OutputDir)
	if err != nil {
		return fmt.Errorf("expand output dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := outputName(out.Input)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(out.Results.HTML), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// logDiagnostics reports the diagnostics of one document once it is done.
func logDiagnostics(logger *zap.Logger, out renderOutput) {
	for _, d := range out.Results.Diagnostics {
		fields := []zap.Field{zap.String("input", displayName(out.Input)), zap.String("type", d.Type)}
		switch d.Level {
		case diagnostics.LevelError:
			logger.Error(d.String(), fields...)
		case diagnostics.LevelWarn:
			logger.Warn(d.String(), fields...)
		default:
			logger.Debug(d.String(), fields...)
		}
	}
}

// outputName is the file an input is written to under --output-dir.
func outputName(input string) string {
	if input == stdinName {
		return "stdin.html"
	}
	return filepath.Base(input)
}

// checkOutputNames fails when two inputs would be written to the same file.
func checkOutputNames(inputs []string) error {
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		name := outputName(in)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("inputs %s and %s would both be written to %s", displayName(prev), displayName(in), name)
		}
		seen[name] = in
	}
	return nil
}

func countStdin(inputs []string) int {
	n := 0
	for _, in := range inputs {
		if in == stdinName {
			n++
		}
	}
	return n
}

func displayName(input string) string {
	if input == stdinName {
		return "stdin"
	}
	return strings.TrimSpace(input)
}
