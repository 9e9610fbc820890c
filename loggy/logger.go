package loggy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/rs/zerolog"
)

var ECHO bool = false
var SILENT bool = false
var LogFolder string = "./logs/"
var Level zerolog.Level = zerolog.InfoLevel

type Logger struct {
	zerolog.Logger
	logFile *os.File
	id      int
	app     string
}

var (
	lock    sync.Mutex
	loggers map[int]*Logger
	app     string
)

// SetApp names the application used in log file names.
func SetApp(name string) {
	lock.Lock()
	defer lock.Unlock()
	app = name
}

// ParseLevel accepts zerolog level names in any case.
func ParseLevel(s string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel, errors.Wrapf(err, "invalid log level '%s'", s)
	}
	return lvl, nil
}

func Get(id int) *Logger {
	lock.Lock()
	defer lock.Unlock()
	if loggers == nil {
		loggers = make(map[int]*Logger)
	}
	l, ok := loggers[id]
	if !ok {
		l = NewLogger(id, app)
		loggers[id] = l
	}
	return l
}

// NewLogger writes JSON lines to a file in LogFolder. With ECHO set the
// same events go to stderr in console form. SILENT disables the file.
func NewLogger(id int, app string) *Logger {
	if app == "" {
		app = "a2storage"
	}

	var writers []io.Writer
	var logFile *os.File
	if !SILENT {
		filename := fmt.Sprintf("%s_%d_%s.log", app, id, fts())
		if err := os.MkdirAll(LogFolder, 0755); err == nil {
			logFile, _ = os.Create(filepath.Join(LogFolder, filename))
		}
		if logFile != nil {
			writers = append(writers, logFile)
		}
	}
	if ECHO {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	return &Logger{
		Logger:  zerolog.New(out).Level(Level).With().Timestamp().Str("app", app).Int("id", id).Logger(),
		logFile: logFile,
		id:      id,
		app:     app,
	}
}

// Close closes every log file opened through Get.
func Close() {
	lock.Lock()
	defer lock.Unlock()
	for id, l := range loggers {
		if l.logFile != nil {
			l.logFile.Close()
		}
		delete(loggers, id)
	}
}

func fts() string {
	return time.Now().Format("20060102150405")
}

func (l *Logger) Logf(format string, v ...interface{}) {
	l.Info().Msgf(format, v...)
}

func (l *Logger) Log(v ...interface{}) {
	l.Info().Msg(fmt.Sprint(v...))
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.Logger.Error().Msgf(format, v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.Logger.Error().Msg(fmt.Sprint(v...))
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.Logger.Debug().Msgf(format, v...)
}

func (l *Logger) Debug(v ...interface{}) {
	l.Logger.Debug().Msg(fmt.Sprint(v...))
}

// Fatalf logs at fatal level without exiting; the caller decides.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
}

func (l *Logger) Fatal(v ...interface{}) {
	l.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprint(v...))
}
