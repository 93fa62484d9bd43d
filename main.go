package main

import (
	"AuraFM/cmd"
)

func main() {
	cmd.Execute()
}
