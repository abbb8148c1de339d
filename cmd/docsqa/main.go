// Command docsqa is the entry point for the documentation question-answering
// service. It provides a CLI (via Cobra) for one-shot questions and corpus
// ingestion, plus an HTTP server for API access.
package main

import (
	"fmt"
	"os"

	"github.com/chaicode/docsqa-go/cmd/docsqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
