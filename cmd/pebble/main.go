package main

import "github.com/marshallshelly/pebble-relations/cmd/pebble/commands"

func main() {
	commands.Execute()
}
