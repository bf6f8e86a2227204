package main

import "github.com/freightdesk/convoy/cmd"

func main() {
	cmd.Execute()
}
