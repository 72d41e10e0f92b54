package main

import "github.com/jetstack/mediarelay/cmd"

func main() {
	cmd.Execute()
}
