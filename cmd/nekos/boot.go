package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nekos-kernel/nekos/pkg/base"
	"github.com/nekos-kernel/nekos/pkg/boot"
	"github.com/nekos-kernel/nekos/pkg/platform"
)

type bootFlags struct {
	initPath  string
	memoryMiB uint64
	harts     uint64
	freqHz    uint64
	runFor    time.Duration
}

// newBootCommand builds the "boot" subcommand: decode a device tree
// from flags (there is no firmware here to hand this kernel a real
// one, per platform.DeviceTree's doc comment), load the init binary
// named by --init, and drive the scheduler for --run-for before
// reporting status and exiting. Grounded on original_source's
// kernel_main, which never returns; this command bounds that loop
// since a hosted demo process has nowhere else useful to go.
func newBootCommand() *cobra.Command {
	flags := &bootFlags{}

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel and run its scheduler for a bounded time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.initPath, "init", "", "path to the init program's ELF image (required)")
	cmd.Flags().Uint64Var(&flags.memoryMiB, "memory-mib", 64, "physical memory to hand the frame allocator, in MiB")
	cmd.Flags().Uint64Var(&flags.harts, "harts", 1, "number of harts the device tree reports")
	cmd.Flags().Uint64Var(&flags.freqHz, "timebase-freq", 10_000_000, "platform timer frequency, in Hz")
	cmd.Flags().DurationVar(&flags.runFor, "run-for", 2*time.Second, "how long to drive the scheduler before reporting status")
	cmd.MarkFlagRequired("init")
	return cmd
}

func runBoot(cmd *cobra.Command, flags *bootFlags) error {
	image, err := os.ReadFile(flags.initPath)
	if err != nil {
		return fmt.Errorf("reading init image: %w", err)
	}

	provider, err := platform.NewHostedProvider(flags.freqHz, nil)
	if err != nil {
		return fmt.Errorf("starting hosted platform: %w", err)
	}
	defer provider.Shutdown()

	cpus := make([]platform.CPU, flags.harts)
	for i := range cpus {
		cpus[i] = platform.CPU{ID: uint64(i), Frequency: flags.freqHz}
	}

	cfg := boot.Config{
		DeviceTree: platform.DeviceTree{
			CPUs:   cpus,
			Memory: platform.MemoryRegion{Start: base.PAddr(0), Size: uintptr(flags.memoryMiB) * 1024 * 1024},
		},
		Provider:    provider,
		Images:      map[string][]byte{"init": image},
		InitProgram: "init",
	}

	result, err := boot.Boot(cfg)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"harts":      flags.harts,
		"memory_mib": flags.memoryMiB,
		"virtios":    len(result.Virtios),
	}).Info("nekos: boot sequence complete")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		result.Scheduler.Run(result.Init.Alive)
	}()

	select {
	case <-time.After(flags.runFor):
		fmt.Fprintf(cmd.OutOrStdout(), "nekos: ran for %s, init process alive=%v, ready tasks=%d\n",
			flags.runFor, result.Init.Alive(), result.Scheduler.Len())
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "nekos: interrupted")
	case <-done:
		fmt.Fprintln(cmd.OutOrStdout(), "nekos: init process exited")
	}
	return nil
}
