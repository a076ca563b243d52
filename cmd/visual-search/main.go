package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	visualsearch "github.com/menta2k/visual-search"
	"github.com/menta2k/visual-search/internal/cli"
)

func main() {
	root := cli.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(visualsearch.Version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
