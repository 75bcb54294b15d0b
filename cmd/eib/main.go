// Command eib replaces a sample of a function's direct branches with
// an indirect branch through a per-function table of block addresses
// enciphered at startup and deciphered back in place at each branch
// site (§4.8).
package main

import (
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/spf13/cobra"

	"github.com/llobf/llobf/internal/cliflags"
	"github.com/llobf/llobf/internal/eib"
	"github.com/llobf/llobf/internal/logging"
	"github.com/llobf/llobf/internal/obftool"
	"github.com/llobf/llobf/internal/rng"
)

func main() {
	os.Exit(mainRun())
}

// mainRun is the testscript-friendly entry point: it returns an exit
// code instead of calling os.Exit directly, so main_test.go can
// register it as a subprocess command via testscript.RunMain.
func mainRun() int {
	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var common cliflags.Common
	var chance int

	cmd := &cobra.Command{
		Use:   "eib <input> <output>",
		Short: "Encrypted Indirect Branch pass",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], common, chance)
		},
	}

	cmd.Flags().IntVar(&common.Iterations, "iterations", 1, "apply the pass N times in succession")
	cmd.Flags().Uint64Var(&common.Seed, "seed", 0, "PRNG seed; 0 draws one nondeterministically")
	cmd.Flags().BoolVar(&common.Verbose, "verbose", false, "enable debug logging")
	cmd.Flags().BoolVar(&common.DryRun, "dry-run", false, "report what would be transformed and exit without writing output")
	cmd.Flags().IntVar(&chance, "chance", 100, "percent chance of replacing a given direct branch")

	return cmd
}

func run(input, output string, common cliflags.Common, chance int) error {
	log := logging.New(common.Verbose)
	if err := common.Validate(); err != nil {
		return err
	}
	if err := cliflags.Percent("chance", chance); err != nil {
		return err
	}

	m, err := obftool.ParseModule(input)
	if err != nil {
		log.Errorw("parse failed", "input", input, "err", err)
		return err
	}

	stream := rng.New(common.Seed)
	log.Infow("seeded PRNG", "seed", stream.Seed())

	if common.DryRun {
		eligible := 0
		for _, fn := range m.Funcs {
			if len(fn.Blocks) > 1 {
				eligible++
			}
		}
		fmt.Printf("eib: %d functions eligible, iterations=%d\n", eligible, common.Iterations)
		return nil
	}

	pipe := obftool.New[*ir.Module]()
	pipe.Add(obftool.NewFuncStep("transform", func(m *ir.Module) error {
		eib.Run(m, stream, common.Iterations, chance, log)
		return nil
	}))
	pipe.Add(obftool.NewFuncStep("verify", obftool.Verify))
	pipe.Add(obftool.NewFuncStep("write", func(m *ir.Module) error {
		return obftool.WriteModule(m, output)
	}))

	if err := pipe.Execute(m, log); err != nil {
		return err
	}
	log.Infow("eib pass complete", "output", output)
	return nil
}
