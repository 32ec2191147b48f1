package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Stderr))
}

// run executes the root command and reports failures on errOut. Cobra's
// own error printing is silenced, so this is the only place errors reach
// the user.
func run(errOut io.Writer) int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
	return 0
}
