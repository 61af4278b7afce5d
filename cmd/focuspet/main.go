package main

import "github.com/bryanchriswhite/focuspet/cmd/focuspet/commands"

func main() {
	commands.Execute()
}
