package main

import "github.com/quotapace/quotapace/internal/cli"

func main() {
	cli.Execute()
}
