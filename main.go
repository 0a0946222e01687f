package main

import "github.com/adisho1992/phlay/cmd"

func main() {
	cmd.Execute()
}
