package main

import "github.com/xz3dev/quacklytics-sub000/code/cmd"

func main() {
	cmd.Execute()
}
