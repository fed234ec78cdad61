package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/glyphd/internal/svcfields"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("GLYPHD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "glyphd")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "glyphd",
		Short:         "glyphd manages incremental glyph caches: warm fonts from a glyph service, inspect and purge the persisted store",
		SilenceErrors: true,
		Example: `
  # Warm two fonts against a local disk store
  GLYPHD_ENDPOINT=https://glyphs.example.com glyphd warm --store disk:///var/cache/glyphd --manifest fonts.yaml

  # Show what is cached for one font
  glyphd chars --store disk:///var/cache/glyphd noto-sans 400

  # Drop a cached font
  glyphd purge --store disk:///var/cache/glyphd noto-sans 400
`,
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.String("store", "", "storage backend URL (mem://, disk:///path)")
	persistentFlags.String("log-level", "", "minimum log level (trace, debug, info, warn, error)")

	viper.SetEnvPrefix("GLYPHD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindFlags(persistentFlags, "store", "log-level")

	cmd.AddCommand(newWarmCommand(baseLogger))
	cmd.AddCommand(newCharsCommand(svcfields.WithSubsystem(baseLogger, "cli.chars")))
	cmd.AddCommand(newPurgeCommand(svcfields.WithSubsystem(baseLogger, "cli.purge")))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}
}

func commandLogger(base pslog.Logger, subsystem string) pslog.Logger {
	logger := base
	if level := strings.TrimSpace(viper.GetString("log-level")); level != "" {
		if parsed, ok := pslog.ParseLevel(level); ok {
			logger = logger.LogLevel(parsed)
		}
	}
	return svcfields.WithSubsystem(logger, subsystem)
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
