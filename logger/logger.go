package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the engine-wide logger. It is usable before InitLogger is called and writes warnings and
// above to stderr until then.
var Logger = newLogger(logrus.WarnLevel, os.Stderr)

// LogConfig selects where the engine logs and how verbosely.
type LogConfig struct {
	// LogPath is an optional file that receives a copy of every entry.
	LogPath  string
	LogLevel string
}

// CustomFormatter renders entries as "[time] [LEVL] component: message key=value ...".
type CustomFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] ", timestamp, level)
	if component, ok := entry.Data[componentKey]; ok {
		fmt.Fprintf(&b, "%v: ", component)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != componentKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

const componentKey = "component"

func newLogger(level logrus.Level, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&CustomFormatter{TimestampFormat: "15:04:05.000 2006/01/02"})
	l.SetLevel(level)
	l.SetOutput(out)
	return l
}

// ParseLogLevel maps a level name onto a logrus level, defaulting to info.
func ParseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// InitLogger reconfigures Logger. When LogPath cannot be opened the logger falls back to stderr and
// the error is returned.
func InitLogger(config LogConfig) error {
	Logger.SetLevel(ParseLogLevel(config.LogLevel))
	if config.LogPath == "" {
		Logger.SetOutput(os.Stderr)
		return nil
	}
	f, err := openLogFile(config.LogPath)
	if err != nil {
		Logger.SetOutput(os.Stderr)
		Logger.Warnf("failed to open log file %s, falling back to stderr: %v", config.LogPath, err)
		return err
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// WithComponent returns an entry tagged with the subsystem that emits it.
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField(componentKey, component)
}

// WithTable returns a component entry that also carries a table name.
func WithTable(component, table string) *logrus.Entry {
	return WithComponent(component).WithField("table", table)
}
