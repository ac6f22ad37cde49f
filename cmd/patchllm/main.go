package main

import (
	"os"

	"github.com/patchllm/cli/cmd/patchllm/cli"
)

func main() {
	os.Exit(cli.Execute())
}
