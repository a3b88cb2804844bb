package main

import (
	"primetime/cmd/handlers"
	"primetime/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
