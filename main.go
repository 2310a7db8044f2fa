package main

import "github.com/agnvar/agnvar/cmd"

func main() {
	cmd.Execute()
}
