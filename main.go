package main

import "Soundscape/cmd"

func main() {
	cmd.Execute()
}
