package main

import "github.com/zoobzio/fieldz/internal/cli"

func main() {
	cli.Execute()
}
