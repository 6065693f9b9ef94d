package rdsock

import "os"

var doLogging = false

func init() {
	doLogging = os.Getenv("RONDOLOG") != ""
}
