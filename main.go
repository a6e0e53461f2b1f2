package main

import "github.com/markb/pushlite/cmd"

func main() {
	cmd.Execute()
}
