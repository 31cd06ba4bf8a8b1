package main

import "github.com/dappcoin/coinctl/cmd"

func main() {
	cmd.Execute()
}
