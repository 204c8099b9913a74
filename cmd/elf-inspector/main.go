package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/raven-betanet/elf-inspector/internal/checks"
	"github.com/raven-betanet/elf-inspector/internal/elfparse"
	"github.com/raven-betanet/elf-inspector/internal/report"
	"github.com/raven-betanet/elf-inspector/internal/utils"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	ctx := utils.WithLogger(context.Background(), utils.NewDefaultLogger())
	os.Exit(run(ctx, afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and maps the outcome to an exit code
func run(ctx context.Context, fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(fs)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitUsage
}

// rootOptions holds the persistent flags and the state built from them
// before any subcommand runs.
type rootOptions struct {
	fs         afero.Fs
	configFile string
	verbose    bool

	config *utils.Config
	logger *utils.Logger
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	opts := &rootOptions{fs: fs}

	cmd := &cobra.Command{
		Use:   "elf-inspector",
		Short: "Structural ELF inspector",
		Long: `elf-inspector decodes the structural metadata of ELF binaries: the
identification block, the file header, program headers and section headers
with their resolved names.

Both 32-bit and 64-bit files in either byte order are supported. Malformed
input never crashes the decoder; whatever was decoded before the first
fatal problem is still reported.

Results can be output in human-readable text or machine-readable JSON formats
for integration with CI/CD pipelines.`,
		Version:       utils.GetVersionString(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")

	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the configuration and builds the logger
func (o *rootOptions) setup(cmd *cobra.Command) error {
	bootstrap := utils.LoggerFromContext(cmd.Context())
	if o.verbose {
		bootstrap = utils.NewLogger(utils.LoggerConfig{
			Level:  utils.LogLevelDebug,
			Format: utils.LogFormatText,
			Output: cmd.ErrOrStderr(),
		})
	}

	config, err := utils.LoadConfig(o.fs, o.configFile, bootstrap)
	if err != nil {
		if utils.IsConfigError(err) {
			return &exitError{code: exitUsage, err: fmt.Errorf("configuration rejected: %w", err)}
		}
		return &exitError{code: exitUsage, err: fmt.Errorf("failed to load configuration: %w", err)}
	}

	logConfig := config.Log
	logConfig.Output = cmd.ErrOrStderr()
	if o.verbose {
		logConfig.Level = utils.LogLevelDebug
	}

	o.config = config
	o.logger = utils.NewLogger(logConfig)
	return nil
}

// applyOutputFlags lets command-line flags override the configured output
func (o *rootOptions) applyOutputFlags(cmd *cobra.Command, format string, noColor bool) error {
	if cmd.Flags().Changed("format") {
		if format != "text" && format != "json" {
			return &exitError{code: exitUsage, err: fmt.Errorf("unsupported output format: %s", format)}
		}
		o.config.Output.Format = format
	}
	if noColor {
		o.config.Output.Color = false
	}
	return nil
}

func (o *rootOptions) renderOptions() report.Options {
	return report.Options{
		Color:      o.config.Output.Color && !color.NoColor,
		HumanSizes: o.config.Output.HumanSizes,
	}
}

// decode opens path and runs the decoder on it. The image is returned even
// when decoding fails part way; only failing to open the file is an error.
func (o *rootOptions) decode(path string) (*elfparse.Image, error) {
	log := o.logger.WithComponent("elf-inspector").WithField("file", path)

	src, err := utils.OpenSource(o.fs, path)
	if err != nil {
		return nil, &exitError{code: exitFailure, err: err}
	}
	defer src.Close()

	decodeOpts := []elfparse.Option{
		elfparse.WithPlaceholder(placeholderFunc(o.config.Decode.Placeholder)),
	}
	if o.config.Decode.Trace {
		o.logger.SetLevel(logrus.DebugLevel)
		decodeOpts = append(decodeOpts, elfparse.WithTrace(o.logger.DecodeTrace(path)))
	}

	img, err := elfparse.Decode(src, decodeOpts...)
	if werr := img.WarningsErr(); werr != nil {
		log.WithError(werr).Warn("Decode produced warnings")
	}
	if err != nil {
		log.WithError(err).Warn("Decode stopped early")
		return img, nil
	}
	log.WithFields(logrus.Fields{
		"segments": len(img.Segments),
		"sections": len(img.Sections),
		"warnings": len(img.Warnings),
	}).Debug("Decode complete")
	return img, nil
}

// placeholderFunc turns the configured format into a name generator for
// sections whose names cannot be resolved.
func placeholderFunc(format string) func(elfparse.SectionHeader) string {
	if format == "" {
		return elfparse.DefaultPlaceholder
	}
	return func(s elfparse.SectionHeader) string {
		return fmt.Sprintf(format, s.NameOffset)
	}
}

// render writes the image and, when present, the check report in the
// configured format
func (o *rootOptions) render(w io.Writer, path string, img *elfparse.Image, results *checks.CheckReport) error {
	switch o.config.Output.Format {
	case "json":
		return report.WriteJSON(w, path, img, results)
	default:
		renderOpts := o.renderOptions()
		if err := report.WriteImage(w, path, img, renderOpts); err != nil {
			return err
		}
		if results != nil {
			return report.WriteChecks(w, results, renderOpts)
		}
		return nil
	}
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var (
		outputFormat string
		trace        bool
		noColor      bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <binary>",
		Short: "Decode and print the structure of an ELF binary",
		Long: `Decode the ELF identification, file header, program headers and section
headers of the specified binary and print them.

Exit codes:
  0 - The binary decoded completely
  1 - The binary could not be opened or decoding stopped early
  2 - Invalid arguments or configuration error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyOutputFlags(cmd, outputFormat, noColor); err != nil {
				return err
			}
			if trace {
				opts.config.Decode.Trace = true
			}
			return runInspect(cmd.OutOrStdout(), opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&trace, "trace", false, "Log every decode step at debug level")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runInspect(w io.Writer, opts *rootOptions, path string) error {
	img, err := opts.decode(path)
	if err != nil {
		return err
	}
	if err := opts.render(w, path, img, nil); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}
	if img.Err != nil {
		return &exitError{code: exitFailure}
	}
	return nil
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		outputFormat string
		noColor      bool
		strict       bool
		skip         []string
		only         []string
	)

	cmd := &cobra.Command{
		Use:   "check <binary>",
		Short: "Run structural checks against an ELF binary",
		Long: `Decode the specified binary and run the structural checks against it.

The check command validates:
1. Header identity (header decoded, known object type)
2. Segment bounds (segments inside the file, memsz >= filesz)
3. Section bounds (sections with file data inside the file)
4. Section names (valid name string table, every name resolved)
5. Entry point (inside an executable LOAD segment)
6. Segment alignment (power-of-two alignment, congruent addresses)
7. Segment hardening (NX stack, RELRO, PIE, symbols)
8. Decode warnings (fails in strict mode when the decoder warned)

Exit codes:
  0 - All checks passed
  1 - One or more checks failed or decoding stopped early
  2 - Invalid arguments or configuration error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyOutputFlags(cmd, outputFormat, noColor); err != nil {
				return err
			}
			if cmd.Flags().Changed("strict") {
				opts.config.Checks.Strict = strict
			}
			if cmd.Flags().Changed("skip") {
				opts.config.Checks.Skip = skip
			}
			return runChecks(cmd.OutOrStdout(), opts, args[0], only)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat decode warnings as failures")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "Check IDs to skip")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only these check IDs")

	return cmd
}

func runChecks(w io.Writer, opts *rootOptions, path string, only []string) error {
	log := opts.logger.WithComponent("elf-inspector")

	img, err := opts.decode(path)
	if err != nil {
		return err
	}

	registry := checks.DefaultRegistry(opts.config.Checks.Strict)
	runner := checks.NewCheckRunner(registry, checks.RunnerOptions{Skip: opts.config.Checks.Skip})

	var results *checks.CheckReport
	if len(only) > 0 {
		results, err = runner.RunSelected(path, img, only)
		if err != nil {
			return &exitError{code: exitUsage, err: err}
		}
	} else {
		results = runner.RunAll(path, img)
	}

	if err := opts.render(w, path, img, results); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}

	s := results.Summary
	if img.Err != nil || !results.Passed() {
		log.Errorf("Structural checks failed: %d/%d checks passed", s.Passed, s.Total)
		return &exitError{code: exitFailure}
	}
	log.Infof("All structural checks passed: %d/%d", s.Passed, s.Total)
	return nil
}

func newVersionCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := utils.GetBuildInfo()
			out := cmd.OutOrStdout()
			switch outputFormat {
			case "json":
				return jsoniter.NewEncoder(out).Encode(info)
			case "text":
			default:
				return &exitError{code: exitUsage, err: fmt.Errorf("unsupported output format: %s", outputFormat)}
			}
			fmt.Fprintf(out, "elf-inspector version %s\n", info.Version)
			fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			fmt.Fprintf(out, "Built: %s\n", info.Date)
			fmt.Fprintf(out, "Go: %s %s\n", info.GoVersion, info.Platform)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json)")
	return cmd
}
