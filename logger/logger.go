package logger

import (
	"github.com/charmbracelet/log"
	"os"
)

var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	ReportCaller:    false,
	Prefix:          "Bluebell",
})

// SetLevel parses a level name such as "debug" or "warn" and applies it to
// Logger. An empty name leaves the current level unchanged.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return err
	}
	Logger.SetLevel(level)
	return nil
}
