package main

import "github.com/ledboard/board-bootstrap/cmd/board-updater/cmd"

func main() {
	cmd.Execute()
}
