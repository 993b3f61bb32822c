package logging

import (
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/orandin/lumberjackrus"
	log "github.com/sirupsen/logrus"

	"github.com/artur/tubegrab/internal/config"
)

// Setup configures the standard logrus logger: text output with caller info
// on the console plus an optional rotating JSON file.
func Setup(cfg config.LogConfig) error {
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:    true,
		CallerPrettyfier: prettyCaller,
	})

	if err := SetLevel(cfg.Level); err != nil {
		return err
	}

	if cfg.File == "" {
		return nil
	}

	hook, err := lumberjackrus.NewHook(
		&lumberjackrus.LogFile{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
			LocalTime:  true,
		},
		log.DebugLevel,
		&log.JSONFormatter{},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create log file hook: %w", err)
	}
	log.AddHook(hook)
	return nil
}

// SetLevel changes the level of the standard logger
func SetLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

func prettyCaller(f *runtime.Frame) (string, string) {
	fn := f.Function
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fn + "()", fmt.Sprintf("%s:%d", path.Base(f.File), f.Line)
}
