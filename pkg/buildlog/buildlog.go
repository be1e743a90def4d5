// Package buildlog provides leveled logging for cube builds: standard
// log output by default, with an optional rotating log file.
package buildlog

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// Config selects an optional rotating log file.
type Config struct {
	Logfile string `yaml:"logfile"`
	MaxSize int    `yaml:"max_log_size"` // megabytes
	MaxAge  int    `yaml:"max_log_age"`  // days
}

var verbose bool

// SetLogger routes log output to a rotating file when one is
// configured; otherwise messages go to standard error.
func (c *Config) SetLogger() {
	if c == nil || c.Logfile == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	})
}

// SetVerbose enables Debugf output.
func SetVerbose(on bool) {
	verbose = on
}

// Debugf logs at DEBUG level when verbose output is enabled.
func Debugf(format string, args ...interface{}) {
	if verbose {
		log.Print(" DEBUG " + fmt.Sprintf(format, args...))
	}
}

// Infof logs at INFO level.
func Infof(format string, args ...interface{}) {
	log.Print(" INFO  " + fmt.Sprintf(format, args...))
}

// Warningf logs at WARNING level.
func Warningf(format string, args ...interface{}) {
	log.Print(" WARN  " + fmt.Sprintf(format, args...))
}

// Errorf logs at ERROR level.
func Errorf(format string, args ...interface{}) {
	log.Print(" ERROR " + fmt.Sprintf(format, args...))
}
