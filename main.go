package main

import (
	"os"

	"calendar-sync/core/logger"
	"calendar-sync/core/server"

	_ "calendar-sync/docs" // Swagger docs
	_ "time/tzdata"
)

// @title Calendar Sync API
// @version 1.0
// @description Connects owners' external calendars, mirrors booked sessions into them and serves iCalendar subscription feeds.

// @host localhost:7070
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Example: "Bearer {token}"

func main() {
	if err := server.Run(); err != nil {
		logger.Error("Main:Run:Error", "error", err)
		os.Exit(1)
	}
}
