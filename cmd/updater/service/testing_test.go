package service

import (
	"github.com/scaleflower/otrs-updater/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}
