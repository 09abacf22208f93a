// Command assay is the CLI entrypoint for the policy-as-code governance
// engine: it wires flag parsing to internal/cli and nothing else.
package main

import "github.com/assayhq/assay/internal/cli"

func main() {
	cli.Execute()
}
