// Command loadkit is an HTTP/1.1 load generator: it opens many concurrent
// client connections against one or more target URLs, drives them as fast
// as policy allows, and reports latency and throughput statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/loadkit/loadkit/internal/buildinfo"
	"github.com/loadkit/loadkit/internal/cliconfig"
	"github.com/loadkit/loadkit/internal/driver"
	"github.com/loadkit/loadkit/internal/report"
	"github.com/loadkit/loadkit/internal/urlset"
	"github.com/loadkit/loadkit/internal/worker"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	var flags *cliconfig.Flags

	root := &cobra.Command{
		Use:          "loadkit <url>|@file",
		Short:        "HTTP/1.1 load generator",
		Version:      buildinfo.String(),
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			if flags.HeaderLine {
				return report.WriteCSVHeader(os.Stdout)
			}
			if len(posArgs) != 1 {
				return fmt.Errorf("exactly one target url or @file is required")
			}
			if flags.Verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return runLoad(cmd.Context(), flags, posArgs[0], log)
		},
	}
	flags = cliconfig.Register(root.Flags())
	root.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loadkit:", err)
		return exitCodeFor(err)
	}
	return 0
}

func runLoad(ctx context.Context, flags *cliconfig.Flags, targetArg string, log *logrus.Logger) error {
	target, err := cliconfig.ParseTarget(targetArg)
	if err != nil {
		return usageError{err}
	}

	registry := urlset.New()
	family := urlset.FamilyAny
	if target.FilePath != "" {
		if err := registry.InitFile(ctx, target.FilePath, family); err != nil {
			return setupError{err}
		}
	} else {
		if err := registry.InitSingle(ctx, target.URL, family); err != nil {
			return setupError{err}
		}
	}

	wt := worker.Config{Registry: registry, UserAgent: "loadkit/" + buildinfo.Version}
	dcfg, rp, err := flags.Build(wt)
	if err != nil {
		return setupError{err}
	}
	if flags.Verbose {
		dcfg.IntervalWriter = os.Stdout
	}

	d := driver.New(dcfg, log.WithField("component", "driver"))
	final, err := d.Run(ctx)
	if err != nil {
		return setupError{err}
	}

	samples := driver.SampleMonitors(dcfg.MonitorAddrs)

	if flags.CSVOutput {
		return report.WriteCSV(os.Stdout, rp, final, samples)
	}
	report.WriteHuman(os.Stdout, rp, final, samples)
	return nil
}

// usageError and setupError distinguish exit code 1 (bad CLI usage) from
// 2 (setup failure after the arguments parsed fine), per the CLI's exit
// code contract; the benchmark's own outcome never affects the exit code.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

type setupError struct{ err error }

func (e setupError) Error() string { return e.err.Error() }

func exitCodeFor(err error) int {
	switch err.(type) {
	case usageError:
		return 1
	case setupError:
		return 2
	default:
		return 1
	}
}
