package main

import "github.com/ledboard/board-bootstrap/cmd/board-installer/cmd"

func main() {
	cmd.Execute()
}
