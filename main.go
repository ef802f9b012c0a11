package main

import "github.com/nebulalabs/nebula-pair/cmd"

func main() {
	cmd.Execute()
}
