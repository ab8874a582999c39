package main

import "github.com/ledboard/board-bootstrap/cmd/board-launcher/cmd"

func main() {
	cmd.Execute()
}
