package logger

import (
	"log"
	"os"
)

// New returns a prefixed stdlib logger for subsystems that log outside the
// structured slog pipeline, such as the browser automation driver.
func New(component string) *log.Logger {
	return log.New(os.Stderr, component+": ", log.LstdFlags|log.Lmsgprefix)
}
