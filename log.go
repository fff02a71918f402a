package vidscale

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/sirupsen/logrus"
)

// ConfigureLogging sets the process log level and routes FFmpeg's own log
// output through logrus so both layers land in one stream.
func ConfigureLogging(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(parsed)

	astiav.SetLogLevel(astiavLogLevel(parsed))
	astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, format, msg string) {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return
		}
		entry := logrus.WithField("source", "ffmpeg")
		if c != nil {
			if cl := c.Class(); cl != nil {
				entry = entry.WithField("class", cl.String())
			}
		}
		switch {
		case l <= astiav.LogLevelError:
			entry.Error(msg)
		case l <= astiav.LogLevelWarning:
			entry.Warn(msg)
		case l <= astiav.LogLevelInfo:
			entry.Info(msg)
		default:
			entry.Debug(msg)
		}
	})
	return nil
}

func astiavLogLevel(level logrus.Level) astiav.LogLevel {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return astiav.LogLevelError
	case logrus.WarnLevel:
		return astiav.LogLevelWarning
	case logrus.InfoLevel:
		return astiav.LogLevelInfo
	case logrus.DebugLevel:
		return astiav.LogLevelVerbose
	default:
		return astiav.LogLevelDebug
	}
}
