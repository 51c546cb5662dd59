package main

import (
	"github.com/hrayleung/Jin-sub003/cmd"
)

func main() {
	cmd.Execute()
}
