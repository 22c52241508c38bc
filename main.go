package main

import "github.com/kozaktomas/sauron/cmd"

func main() {
	cmd.Execute()
}
