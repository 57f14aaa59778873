package main

import (
	"os"

	"github.com/nsxbet/ddlguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
