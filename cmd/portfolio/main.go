// Package main is the entry point of the portfolio command.
//
// The main package is kept minimal: all commands live in internal/cli, the
// session assembly in internal/app.
package main

import "github.com/sakif/portfolio/internal/cli"

func main() {
	cli.Execute()
}
