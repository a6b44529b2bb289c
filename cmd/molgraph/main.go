package main

import "github.com/qsarlab/molgraph/internal/interfaces/cli"

func main() {
	cli.Execute()
}
