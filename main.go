package main

import "vcompressor/cmd"

func main() {
	cmd.Execute()
}
