// Command wagi runs a WebAssembly Gateway Interface server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wagi",
	Short: "Run sandboxed WebAssembly modules behind an HTTP front-end",
	Long: `wagi serves HTTP requests by dispatching them to sandboxed WebAssembly
modules through the CGI 1.1 conventions: environment variables,
command-line arguments, and standard input in; standard output parsed
back into an HTTP response.`,
}

func init() {
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(completionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
