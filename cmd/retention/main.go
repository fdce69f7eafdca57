package main

import "github.com/vietddude/retention/internal/cli"

func main() {
	cli.Execute()
}
