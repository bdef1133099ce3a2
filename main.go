package main

import "github.com/Yates-Labs/auditor/cmd"

func main() {
	cmd.Execute()
}
