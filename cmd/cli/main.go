// Package main is the entry point for the dbh CLI binary.
package main

import (
	"os"

	cli "dbhandle/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
