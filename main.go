package main

import (
	"github.com/quaverhq/quaver/cmd"
)

func main() {
	cmd.Execute()
}
