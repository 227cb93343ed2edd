package main

import "github.com/vietddude/redeliver/internal/cli"

func main() {
	cli.Execute()
}
