package main

import (
	"fmt"
	"os"

	"github.com/rony4d/go-forksim/cmd/forksim/launcher"
)

func main() {

	arguments := os.Args

	err := launcher.Launch(arguments)

	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
		return
	}

}
