package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/glyphd"
	"pkt.systems/glyphd/client"
	"pkt.systems/glyphd/fontedit"
	"pkt.systems/pslog"
)

// warmManifest is the YAML schema consumed by `glyphd warm --manifest`.
type warmManifest struct {
	// Endpoint overrides --endpoint / GLYPHD_ENDPOINT when set.
	Endpoint string `yaml:"endpoint,omitempty"`
	// Text is warmed into every font that does not carry its own.
	Text  string      `yaml:"text,omitempty"`
	Fonts []warmEntry `yaml:"fonts"`
}

type warmEntry struct {
	Family string `yaml:"family"`
	Weight int    `yaml:"weight"`
	Text   string `yaml:"text,omitempty"`
}

func newWarmCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Fetch bases and glyphs for the fonts in a manifest so later sessions start warm",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			logger := commandLogger(baseLogger, "cli.warm")
			ctx := cmd.Context()

			manifestPath := viper.GetString("manifest")
			if strings.TrimSpace(manifestPath) == "" {
				return fmt.Errorf("warm: --manifest required")
			}
			manifest, err := loadWarmManifest(manifestPath)
			if err != nil {
				return err
			}

			endpoint := strings.TrimSpace(viper.GetString("endpoint"))
			if manifest.Endpoint != "" {
				endpoint = manifest.Endpoint
			}
			src, err := client.New(client.Config{
				Endpoint: endpoint,
				Timeout:  viper.GetDuration("timeout"),
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			telemetry, err := glyphd.SetupTelemetry(ctx, glyphd.TelemetryConfig{
				OTLPEndpoint:  viper.GetString("otlp-endpoint"),
				MetricsListen: viper.GetString("metrics-listen"),
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = telemetry.Shutdown(shutdownCtx)
			}()

			for _, entry := range manifest.Fonts {
				text := entry.Text
				if text == "" {
					text = manifest.Text
				}
				if err := warmFont(ctx, cmd, logger, src, entry, text); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("manifest", "", "path to YAML warm manifest")
	flags.String("endpoint", "", "glyph service base URL (or GLYPHD_ENDPOINT)")
	flags.Duration("timeout", 30*time.Second, "per-request timeout against the glyph service")
	flags.Int("chunk-size", glyphd.DefaultRequestChunkSize, "maximum codepoints per glyph request")
	flags.Bool("no-obfuscation", false, "disable decoy padding for small requests")
	flags.Bool("drop-cache", false, "discard any persisted record before warming")
	flags.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	bindFlags(flags, "manifest", "endpoint", "timeout", "chunk-size", "no-obfuscation", "drop-cache", "metrics-listen", "otlp-endpoint")
	return cmd
}

func warmFont(ctx context.Context, cmd *cobra.Command, logger pslog.Logger, src *client.Client, entry warmEntry, text string) error {
	font := glyphd.FontIdentity{Family: entry.Family, Weight: entry.Weight}
	mgr, err := glyphd.NewManager(font, glyphd.Config{
		Store:              viper.GetString("store"),
		Source:             src,
		Editor:             fontedit.New(),
		RequestChunkSize:   viper.GetInt("chunk-size"),
		DisableObfuscation: viper.GetBool("no-obfuscation"),
		DropExistingCache:  viper.GetBool("drop-cache"),
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	if text == "" {
		if err := mgr.Prepare(ctx); err != nil {
			return fmt.Errorf("warm %s: %w", font, err)
		}
	} else {
		result, err := mgr.LoadGlyphs(ctx, text)
		if err != nil {
			return fmt.Errorf("warm %s: %w", font, err)
		}
		if result.Requested > 0 && result.Injected == 0 && result.Needed > 0 {
			return fmt.Errorf("warm %s: glyph load did not complete", font)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: requested=%d needed=%d injected=%d remaining=%d\n",
			font, result.Requested, result.Needed, result.Injected, result.Remaining)
	}

	raw, err := mgr.FontBytes()
	if err != nil {
		return fmt.Errorf("warm %s: %w", font, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: cached %d characters, font %s\n",
		font, len(mgr.CachedCharacters()), humanizeBytes(len(raw)))
	return nil
}

func loadWarmManifest(path string) (*warmManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("warm: read manifest: %w", err)
	}
	var manifest warmManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("warm: parse manifest %q: %w", path, err)
	}
	if len(manifest.Fonts) == 0 {
		return nil, fmt.Errorf("warm: manifest %q lists no fonts", path)
	}
	for i, entry := range manifest.Fonts {
		if strings.TrimSpace(entry.Family) == "" {
			return nil, fmt.Errorf("warm: manifest font %d missing family", i)
		}
		if entry.Weight <= 0 {
			return nil, fmt.Errorf("warm: manifest font %d has non-positive weight", i)
		}
	}
	return &manifest, nil
}

func humanizeBytes(n int) string {
	return strings.ReplaceAll(humanize.Bytes(uint64(n)), " ", "")
}
