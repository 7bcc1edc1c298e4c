package main

import "github.com/biko2/static-suite-data-server/cmd"

func main() {
	cmd.Execute()
}
