package main

import "github.com/miradorstack/mirador-risk/internal/cli"

func main() {
	cli.Execute()
}
