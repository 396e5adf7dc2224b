package main

import "github.com/KelvinWu602/blobshard/cli"

func main() {
	cli.Execute()
}
