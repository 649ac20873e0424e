package main

import "github.com/vietddude/portalgate/internal/cli"

func main() {
	cli.Execute()
}
