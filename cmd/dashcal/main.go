package main

import "dashcal/cmd/dashcal/cmd"

func main() {
	cmd.Execute()
}
