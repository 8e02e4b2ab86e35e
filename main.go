package main

import "flipbook/cmd"

func main() {
	cmd.Execute()
}
