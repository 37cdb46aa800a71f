package main

import "TorchLedger/cmd"

func main() {
	cmd.Execute()
}
