package main

import "BUREAU/cmd"

func main() {
	cmd.Execute()
}
