package main

import (
	"fmt"
	"hostplane/cmd/hostplane"
	"os"
)

func main() {
	if err := hostplane.Command.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
