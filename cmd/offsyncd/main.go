package main

import "github.com/unkn0wn-root/offsync/internal/cli"

func main() {
	cli.Execute()
}
