package main

import "github.com/sergev/usbtool/cmd"

func main() {
	cmd.Execute()
}
