// Package main provides the entry point for the latexmk-emu CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"latexmk-emu/internal/emulator"
	"latexmk-emu/internal/logger"
	"latexmk-emu/internal/runner"
	"latexmk-emu/internal/tlmgr"
	"latexmk-emu/internal/types"
)

var version = "dev"

func main() {
	rootCmd := newRootCommand()
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "latexmk-emu [flags] <file.tex>",
		Short: "Compile a LaTeX document to PDF with latexmk-style convergence",
		Long: `latexmk-emu compiles a LaTeX document by repeatedly running the
typesetting engine, makeindex, and the bibliography tool until
cross-references converge, installing missing TeX Live packages on the
way when auto-install is enabled.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logger.LevelInfo
			if verbose {
				level = logger.LevelDebug
			}
			if err := logger.Init(&logger.Config{Level: level, EnableConsole: true}); err != nil {
				return err
			}
			defer logger.Close()

			cfg, err := buildConfig()
			if err != nil {
				return err
			}
			return compile(cmd, cfg, args[0])
		},
	}

	flags := cmd.Flags()
	flags.String("engine", "xelatex", "typesetting engine (pdflatex, xelatex, lualatex)")
	flags.String("bib-engine", "bibtex", "bibliography engine (bibtex, biber)")
	flags.Int("max-passes", types.DefaultMaxPasses, "maximum engine re-runs while cross-references are unresolved")
	flags.Bool("auto-install", true, "install missing packages via tlmgr")
	flags.Bool("emulation", true, "use the built-in latexmk emulation instead of the system latexmk")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.SetEnvPrefix("LATEXMK_EMU")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"engine", "bib-engine", "max-passes", "auto-install", "emulation"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	return cmd
}

// buildConfig assembles the explicit run configuration from flags and
// environment.
func buildConfig() (types.Config, error) {
	cfg := types.Config{
		Engine:      viper.GetString("engine"),
		Emulation:   viper.GetBool("emulation"),
		MaxPasses:   viper.GetInt("max-passes"),
		AutoInstall: viper.GetBool("auto-install"),
		BibEngine:   types.BibEngine(viper.GetString("bib-engine")),
	}

	switch cfg.BibEngine {
	case types.BibEngineBibTeX, types.BibEngineBiber:
	default:
		return cfg, types.NewAppError(types.ErrInvalidInput,
			"unknown bibliography engine: "+string(cfg.BibEngine), nil)
	}
	return cfg, nil
}

func compile(cmd *cobra.Command, cfg types.Config, texPath string) error {
	doc, err := types.NewDocument(texPath)
	if err != nil {
		return err
	}

	var (
		resolver  tlmgr.Resolver
		installer tlmgr.Installer
	)
	if cfg.AutoInstall {
		resolver = tlmgr.NewResolver()
		installer = tlmgr.NewInstaller()
	}

	em := emulator.New(cfg, runner.New(doc.Dir), resolver, installer)
	result, err := em.Compile(cmd.Context(), doc)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Details != "" {
			fmt.Fprintln(os.Stderr, appErr.Details)
		}
		return err
	}

	if result.PageCount > 0 {
		fmt.Fprintf(os.Stdout, "Output written to %s (%d pages)\n", result.PDFPath, result.PageCount)
	} else {
		fmt.Fprintf(os.Stdout, "Output written to %s\n", result.PDFPath)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "latexmk-emu %s\n", version)
		},
	}
}
