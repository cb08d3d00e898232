package main

import "github.com/fakeyudi/cuecam/cmd"

func main() {
	cmd.Execute()
}
