package main

import (
	"fmt"
	"os"

	"github.com/maastricht-university/vamphost/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vamphost:", err)
		os.Exit(1)
	}
}
