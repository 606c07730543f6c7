package main

import "github.com/razfaz/razfaz/internal/cli"

func main() {
	cli.Execute()
}
