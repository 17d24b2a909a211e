package main

import "github.com/sportsight/scout/internal/cli"

func main() {
	cli.Execute()
}
