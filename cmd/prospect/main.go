package main

import (
	"prospect/cmd/cmd"
	"prospect/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
