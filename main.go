package main

import "github.com/geeband/geeband/cmd"

func main() {
	cmd.Execute()
}
