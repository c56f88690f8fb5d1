package main

import "github.com/nhle/ambrose/internal/cli"

func main() {
	cli.Execute()
}
