package main

import "github.com/devicelab-dev/touchstone/pkg/cli"

func main() {
	cli.Execute()
}
