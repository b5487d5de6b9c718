package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cs257/x64cg/internal/codegen"
	"github.com/cs257/x64cg/internal/ir"
)

var rootCmd = &cobra.Command{
	Use:   "x64cg <file.ir>",
	Short: "cs257 code generator",
	Long:  "Translates a textual SSA intermediate representation into GNU-assembler x86-64.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	mod, parseErrors := ir.Parse(f)
	if len(parseErrors) > 0 {
		for _, e := range parseErrors {
			fmt.Fprintf(os.Stderr, "%s\n", e)
		}
		return fmt.Errorf("%d parse error(s)", len(parseErrors))
	}

	asm, diagnostics := codegen.Generate(mod)
	for _, d := range diagnostics {
		fmt.Fprintf(os.Stderr, "warning: %s\n", d)
	}

	fmt.Print(asm)
	return nil
}
