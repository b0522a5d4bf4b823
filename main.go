package main

import "github.com/yeremiapane/neighborhood-grub/commands"

func main() {
	commands.Execute()
}
