package main

import "rateoracle/internal/cli"

func main() {
	cli.Execute()
}
