package main

import "quote-drift-tracker/internal/cli"

func main() {
	cli.Execute()
}
