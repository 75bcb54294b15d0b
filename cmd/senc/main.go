// Command senc encrypts string globals, either once at startup
// (global mode) or on demand into a stack buffer right before each use
// (stack mode) (§4.9).
package main

import (
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/spf13/cobra"

	"github.com/llobf/llobf/internal/cliflags"
	"github.com/llobf/llobf/internal/logging"
	"github.com/llobf/llobf/internal/obftool"
	"github.com/llobf/llobf/internal/rng"
	"github.com/llobf/llobf/internal/senc"
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
	var modeName, skipPrefix string

	cmd := &cobra.Command{
		Use:   "senc <input> <output>",
		Short: "String Encryption pass",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], common, modeName, skipPrefix)
		},
	}

	cmd.Flags().IntVar(&common.Iterations, "iterations", 1, "apply the pass N times in succession")
	cmd.Flags().Uint64Var(&common.Seed, "seed", 0, "PRNG seed; 0 draws one nondeterministically")
	cmd.Flags().BoolVar(&common.Verbose, "verbose", false, "enable debug logging")
	cmd.Flags().BoolVar(&common.DryRun, "dry-run", false, "report what would be transformed and exit without writing output")
	cmd.Flags().StringVar(&modeName, "mode", "global", `encryption strategy: "global" or "stack"`)
	cmd.Flags().StringVar(&skipPrefix, "skip-prefix", "", "skip string globals whose name has this prefix")

	return cmd
}

func parseMode(name string) (senc.Mode, error) {
	switch name {
	case "global":
		return senc.ModeGlobal, nil
	case "stack":
		return senc.ModeStack, nil
	default:
		return 0, fmt.Errorf("--mode must be \"global\" or \"stack\", got %q", name)
	}
}

func run(input, output string, common cliflags.Common, modeName, skipPrefix string) error {
	log := logging.New(common.Verbose)
	if err := common.Validate(); err != nil {
		return err
	}
	mode, err := parseMode(modeName)
	if err != nil {
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
		strings := 0
		for _, g := range m.Globals {
			if _, ok := g.Init.(*constant.CharArray); ok {
				strings++
			}
		}
		fmt.Printf("senc: %d string globals eligible, mode=%s, iterations=%d\n", strings, modeName, common.Iterations)
		return nil
	}

	pipe := obftool.New[*ir.Module]()
	pipe.Add(obftool.NewFuncStep("transform", func(m *ir.Module) error {
		for i := 0; i < common.Iterations; i++ {
			senc.Run(m, stream, mode, skipPrefix, log)
		}
		return nil
	}))
	pipe.Add(obftool.NewFuncStep("verify", obftool.Verify))
	pipe.Add(obftool.NewFuncStep("write", func(m *ir.Module) error {
		return obftool.WriteModule(m, output)
	}))

	if err := pipe.Execute(m, log); err != nil {
		return err
	}
	log.Infow("senc pass complete", "output", output)
	return nil
}
