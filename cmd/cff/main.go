// Command cff flattens function control flow into a switch-dispatcher
// state machine, optionally layering function-resolver indirection,
// global-backed constants, opaque arithmetic, and SipHash over the
// state comparisons (§4.7).
package main

import (
	"fmt"
	"os"

	"github.com/llir/llvm/ir"
	"github.com/spf13/cobra"

	"github.com/llobf/llobf/internal/cff"
	"github.com/llobf/llobf/internal/cliflags"
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
	var opts cff.Options

	cmd := &cobra.Command{
		Use:   "cff <input> <output>",
		Short: "Control-Flow Flattening pass",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], common, opts)
		},
	}

	cmd.Flags().IntVar(&common.Iterations, "iterations", 1, "apply the pass N times in succession")
	cmd.Flags().Uint64Var(&common.Seed, "seed", 0, "PRNG seed; 0 draws one nondeterministically")
	cmd.Flags().BoolVar(&common.Verbose, "verbose", false, "enable debug logging")
	cmd.Flags().BoolVar(&common.DryRun, "dry-run", false, "report what would be transformed and exit without writing output")

	cmd.Flags().IntVar(&opts.FuncResolver, "use-func-resolver", 0, "percent chance of routing a state comparison through a per-site resolver function")
	cmd.Flags().IntVar(&opts.GlobalState, "use-global-state", 0, "percent chance of loading a state constant from a private global")
	cmd.Flags().IntVar(&opts.Opaque, "use-opaque", 0, "percent chance of wrapping a state through the opaque arithmetic chain")
	cmd.Flags().IntVar(&opts.GlobalOpaque, "use-global-opaque", 0, "percent chance of backing the opaque chain's constants with globals")
	cmd.Flags().IntVar(&opts.SipHash, "use-siphash", 0, "percent chance of hashing the state through SipHash before compare")
	cmd.Flags().IntVar(&opts.CloneSipHash, "clone-siphash", 0, "percent chance of cloning the SipHash definition per call site")

	return cmd
}

func run(input, output string, common cliflags.Common, opts cff.Options) error {
	log := logging.New(common.Verbose)
	if err := common.Validate(); err != nil {
		return err
	}
	for name, v := range map[string]int{
		"use-func-resolver": opts.FuncResolver,
		"use-global-state":  opts.GlobalState,
		"use-opaque":        opts.Opaque,
		"use-global-opaque": opts.GlobalOpaque,
		"use-siphash":       opts.SipHash,
		"clone-siphash":     opts.CloneSipHash,
	} {
		if err := cliflags.Percent(name, v); err != nil {
			return err
		}
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
		fmt.Printf("cff: %d functions eligible, iterations=%d\n", eligible, common.Iterations)
		return nil
	}

	pipe := obftool.New[*ir.Module]()
	pipe.Add(obftool.NewFuncStep("transform", func(m *ir.Module) error {
		cff.Run(m, stream, common.Iterations, opts, log)
		return nil
	}))
	pipe.Add(obftool.NewFuncStep("verify", obftool.Verify))
	pipe.Add(obftool.NewFuncStep("write", func(m *ir.Module) error {
		return obftool.WriteModule(m, output)
	}))

	if err := pipe.Execute(m, log); err != nil {
		return err
	}
	log.Infow("cff pass complete", "output", output)
	return nil
}
