// Command nekos boots the kernel in a hosted process and drives its
// scheduler, standing in for the board-specific loader real hardware
// or a VMM would otherwise provide. Grounded on original_source's
// startup.rs (the same discover-then-boot sequence pkg/boot.Boot
// wraps) and modeled, as a command surface, on tinyrange-cc's
// cmd/* tools: one root command, flag-driven subcommands, no
// interactive prompts.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "nekos",
		Short: "A hosted RISC-V microkernel",
		Long: `nekos runs the kernel's boot sequence and scheduler in a hosted
process: a frame allocator and page table backed by Go memory, a
pipe-backed console in place of a UART, and hart start/stop recorded
as status only (no goroutine runs a second hart). It is a development
and test harness, not a hypervisor.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level kernel logging")

	root.AddCommand(newBootCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kernel's version string",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
			return nil
		},
	}
}
