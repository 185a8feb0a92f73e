package main

import (
	"os"
	"runtime/debug"

	"memdev/cmd"
	"memdev/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("DEVICE CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
