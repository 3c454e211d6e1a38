package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fwessels/ppstep"
	"github.com/fwessels/ppstep/internal/config"
	"github.com/fwessels/ppstep/internal/console"
	"github.com/fwessels/ppstep/internal/preprocessor"
	"github.com/fwessels/ppstep/internal/session"
	"github.com/fwessels/ppstep/internal/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	configPath  string
	includeDirs []string
	defines     []string
	breakCall   []string
	breakExpand []string
	runMode     bool
	color       string
	prompt      string
	verbose     bool
	cfg         *config.Config
	logger      *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "ppstep [flags] <file>",
		Short: "Step through C preprocessor macro expansion",
		Long: `ppstep preprocesses a C or C++ source file and stops after every macro
call, substitution and rescan, showing the whole token sequence with the
part that just changed highlighted.

At the pp> prompt:
  step|s [n], continue|c, break|b <kind> <NAME>, delete|d <kind> <NAME>,
  info|i, help|h, quit|q, or an empty line to show the current state.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "ppstep.yaml", "configuration file")
	f.StringArrayVarP(&o.includeDirs, "include", "I", nil, "add an include directory")
	f.StringArrayVarP(&o.defines, "define", "D", nil, "define a macro as NAME, NAME=VALUE or NAME(PARAMS)=BODY")
	f.StringSliceVar(&o.breakCall, "break-call", nil, "stop when these macros are called")
	f.StringSliceVar(&o.breakExpand, "break-expand", nil, "stop when these macros are expanded")
	f.BoolVar(&o.runMode, "run", false, "run until a breakpoint instead of stopping before the first event")
	f.StringVar(&o.color, "color", "", "highlighting: auto, always or never")
	f.StringVar(&o.prompt, "prompt", "", "prompt string")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

// setup loads the configuration, applies flags on top of it and builds
// the logger.
func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("prompt") {
		cfg.Prompt = o.prompt
	}
	if flags.Changed("color") {
		cfg.Color = o.color
	}
	if o.runMode {
		cfg.Mode = ppstep.ModeUntilBreak.String()
	}
	cfg.IncludeDirs = append(cfg.IncludeDirs, o.includeDirs...)
	cfg.Breakpoints.Call = append(cfg.Breakpoints.Call, o.breakCall...)
	cfg.Breakpoints.Expand = append(cfg.Breakpoints.Expand, o.breakExpand...)
	if len(o.defines) > 0 && cfg.Defines == nil {
		cfg.Defines = map[string]string{}
	}
	for _, d := range o.defines {
		name, value := preprocessor.ParseDefine(d)
		cfg.Defines[name] = value
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	o.logger, err = buildLogger(cfg.Logging, o.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func buildLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	lvl, err := lc.ZapLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if lc.File != "" {
		zc.OutputPaths = []string{lc.File}
		zc.ErrorOutputPaths = []string{lc.File}
	} else {
		zc.OutputPaths = []string{"stderr"}
	}
	return zc.Build()
}

func (o *options) run(cmd *cobra.Command, file string) error {
	cfg := o.cfg
	src, err := os.Open(file)
	if err != nil {
		return err
	}
	defer src.Close()

	out := cmd.OutOrStdout()
	con, err := console.Open(cmd.InOrStdin(), out, cfg.Prompt)
	if err != nil {
		return err
	}
	defer con.Close()

	r, err := view.New(out, cfg.Color)
	if err != nil {
		return err
	}

	pp := preprocessor.NewPreprocessor()
	pp.IncludeDirs = cfg.IncludeDirs
	pp.MaxExpansions = cfg.MaxExpansions
	pp.Logger = o.logger.Named("preprocessor")
	for name, value := range cfg.Defines {
		if err := pp.Define(name, value); err != nil {
			return err
		}
	}

	s := session.New(con, r, session.Options{
		Mode:         cfg.SteppingMode(),
		CallBreaks:   cfg.Breakpoints.Call,
		ExpandBreaks: cfg.Breakpoints.Expand,
		Logger:       o.logger,
	})
	err = s.Run(cmd.Context(), file, src, pp)
	if errors.Is(err, ppstep.ErrTerminate) {
		return nil
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
