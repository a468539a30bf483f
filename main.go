package main

import "github.com/opslane/access-portal/cmd"

func main() {
	cmd.Execute()
}
