package main

import "github.com/Laisky/laisky-drive/cmd"

func main() {
	cmd.Execute()
}
