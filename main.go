package main

import "github.com/crystaldolphin/pusherbridge/cmd"

func main() {
	cmd.Execute()
}
