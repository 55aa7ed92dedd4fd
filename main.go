package main

import "github.com/afklabs/afkmon/cmd"

func main() {
	cmd.Execute()
}
