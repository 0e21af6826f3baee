package main

import "github.com/chrisdamba/fleetalloc/cmd"

func main() {
	cmd.Execute()
}
