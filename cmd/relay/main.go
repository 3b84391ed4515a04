package main

import "github.com/1dr0z/elm-redux-devtools/cmd/relay/command"

func main() {
	command.Execute()
}
