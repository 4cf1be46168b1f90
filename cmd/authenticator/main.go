// Package main provides the entry point for the authenticator CLI.
package main

import "github.com/turtacn/authenticator/cmd/cli"

func main() {
	cli.Execute()
}
