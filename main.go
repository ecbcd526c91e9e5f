package main

import "github.com/kozaktomas/facerecog/cmd"

func main() {
	cmd.Execute()
}
