package main

import (
	"fmt"
	"os"

	"github.com/nhle/workdesk/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "workdesk:", err)
		os.Exit(1)
	}
}
