package main

import "chatkat/internal/ctl"

func main() {
	ctl.Execute()
}
