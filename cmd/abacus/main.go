package main

import "github.com/emiliopalmerini/abacus/internal/cli"

func main() {
	cli.Execute()
}
