// Command redland-forge orchestrates parallel autoconf-style builds of a
// tarball across a set of SSH hosts, showing live per-host progress in a
// terminal UI (spec.md §1).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dajobe/redland-forge/internal/appctl"
	"github.com/dajobe/redland-forge/internal/config"
	"github.com/dajobe/redland-forge/internal/procctl"
	"github.com/dajobe/redland-forge/internal/sshexec"
	"github.com/dajobe/redland-forge/internal/textutil"
)

var atExit procctl.AtExit

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "redland-forge: fatal: %v\n", r)
			atExit.Run()
			os.Exit(1)
		}
	}()

	cmd, opts := newRootCommand()
	if err := cmd.Execute(); err != nil {
		atExit.Run()
		os.Exit(2)
	}
	atExit.Run()
	os.Exit(opts.exitCode)
}

// runOptions carries the outcome of RunE back to main for the process
// exit code, since cobra's RunE signature only returns an error (which
// this program reserves for argument errors, exit code 2 per spec.md
// §6).
type runOptions struct {
	exitCode int
}

func newRootCommand() (*cobra.Command, *runOptions) {
	opts := &runOptions{}
	var (
		hostsFile       string
		maxConcurrent   int
		autoExitDelay   int
		noAutoExit      bool
		cacheFile       string
		cacheRetention  int
		cacheKeepBuilds int
		noCache         bool
		noProgress      bool
		colorFlag       string
		debug           bool
		cfgFile         string
		demoPrefixes    []string
	)

	cmd := &cobra.Command{
		Use:   "redland-forge <tarball> <host[,host...]>",
		Short: "Run a parallel autoconf build across SSH hosts",
		Long: `redland-forge uploads a source tarball and a build agent to each
given host over SSH, runs configure/make/make check/make install, and
shows live per-host progress in a terminal grid.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { explicit[f.Name] = true })

			mode, ok := textutil.ParseColorMode(colorFlag)
			if !ok {
				return fmt.Errorf("invalid --color value %q", colorFlag)
			}

			cfg := &config.Config{
				Tarball:         args[0],
				MaxConcurrent:   maxConcurrent,
				AutoExitDelay:   time.Duration(autoExitDelay) * time.Second,
				NoAutoExit:      noAutoExit,
				CacheFile:       cacheFile,
				CacheRetention:  time.Duration(cacheRetention) * 24 * time.Hour,
				CacheKeepBuilds: cacheKeepBuilds,
				NoCache:         noCache,
				NoProgress:      noProgress,
				Color:           mode,
				Debug:           debug,
				DemoPrefixes:    demoPrefixes,
			}

			hosts, err := config.ParseHosts(args[1:], hostsFile)
			if err != nil {
				return err
			}
			cfg.Hosts = hosts

			if file, err := config.LoadFile(cfgFile); err == nil {
				cfg.ApplyFile(file, explicit)
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			specs := make([]sshexec.HostSpec, 0, len(cfg.Hosts))
			for _, h := range cfg.Hosts {
				specs = append(specs, sshexec.HostSpec{Key: h})
			}

			ctx, cancel := procctl.InterruptibleContext()
			defer cancel()

			termW, termH := 0, 0
			if !cfg.NoProgress && term.IsTerminal(int(os.Stdin.Fd())) {
				if oldState, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
					atExit.Register(func() error { return term.Restore(int(os.Stdin.Fd()), oldState) })
				}
				if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					termW, termH = w, h
				}
			}

			ctrl := appctl.New(cfg, specs, appctl.Deps{
				Stdout:     os.Stdout,
				Stderr:     os.Stderr,
				KeyInput:   os.Stdin,
				TermWidth:  termW,
				TermHeight: termH,
			})
			opts.exitCode = ctrl.Run(ctx, cfg.Tarball)
			return nil
		},
	}

	cmd.Flags().StringVarP(&hostsFile, "hosts-file", "f", "", "file with one user@host per line")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", config.DefaultMaxConcurrent(), "maximum concurrent builds")
	cmd.Flags().IntVar(&autoExitDelay, "auto-exit-delay", config.DefaultAutoExitDelaySeconds, "seconds to wait after completion before exiting")
	cmd.Flags().BoolVar(&noAutoExit, "no-auto-exit", false, "disable automatic exit after completion")
	cmd.Flags().StringVar(&cacheFile, "cache-file", config.DefaultCacheFile(), "path to the timing cache")
	cmd.Flags().IntVar(&cacheRetention, "cache-retention", config.DefaultCacheRetentionDays, "days to retain cache entries")
	cmd.Flags().IntVar(&cacheKeepBuilds, "cache-keep-builds", config.DefaultCacheKeepBuilds, "recent builds retained per host")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the timing cache")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the live terminal UI")
	cmd.Flags().StringVar(&colorFlag, "color", "auto", "color mode: auto, always, never")
	cmd.Flags().BoolVar(&debug, "debug", false, "recorded in the configuration; produces no extra output")
	cmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	cmd.Flags().StringSliceVar(&demoPrefixes, "demo-prefix", nil, "host-key prefixes treated as demo hosts (repeatable)")

	return cmd, opts
}
