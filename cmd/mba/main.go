// Command mba rewrites integer binary operators with algebraically
// equivalent but syntactically convoluted expressions (§4.3).
package main

import (
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/spf13/cobra"

	"github.com/llobf/llobf/internal/cliflags"
	"github.com/llobf/llobf/internal/logging"
	"github.com/llobf/llobf/internal/mba"
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

	cmd := &cobra.Command{
		Use:   "mba <input> <output>",
		Short: "Mixed-Boolean-Arithmetic substitution pass",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], common)
		},
	}

	cmd.Flags().IntVar(&common.Iterations, "iterations", 1, "apply the pass N times in succession")
	cmd.Flags().Uint64Var(&common.Seed, "seed", 0, "PRNG seed; 0 draws one nondeterministically")
	cmd.Flags().BoolVar(&common.Verbose, "verbose", false, "enable debug logging")
	cmd.Flags().BoolVar(&common.DryRun, "dry-run", false, "report what would be transformed and exit without writing output")

	return cmd
}

func run(input, output string, common cliflags.Common) error {
	log := logging.New(common.Verbose)
	if err := common.Validate(); err != nil {
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
			if len(fn.Blocks) > 0 {
				eligible++
			}
		}
		fmt.Printf("mba: %d functions eligible, iterations=%d\n", eligible, common.Iterations)
		return nil
	}

	pipe := obftool.New[*ir.Module]()
	pipe.Add(obftool.NewFuncStep("transform", func(m *ir.Module) error {
		mba.Run(m, stream, common.Iterations)
		return nil
	}))
	pipe.Add(obftool.NewFuncStep("verify", obftool.Verify))
	pipe.Add(obftool.NewFuncStep("write", func(m *ir.Module) error {
		return obftool.WriteModule(m, output)
	}))

	if err := pipe.Execute(m, log); err != nil {
		return err
	}
	log.Infow("mba pass complete", "output", output)
	return nil
}
