package main

import (
	"os"

	"mmsol/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
