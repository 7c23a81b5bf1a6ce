package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type ZerologHandler struct {
	logger zerolog.Logger
}

// NewZerolog returns a Logger writing through l.
func NewZerolog(l zerolog.Logger) *ZerologHandler {
	return &ZerologHandler{logger: l}
}

func (handler *ZerologHandler) Error(msg string, args ...any) {
	withFields(handler.logger.Error(), args).Msg(msg)
}

func (handler *ZerologHandler) Warn(msg string, args ...any) {
	withFields(handler.logger.Warn(), args).Msg(msg)
}

func (handler *ZerologHandler) Info(msg string, args ...any) {
	withFields(handler.logger.Info(), args).Msg(msg)
}

func (handler *ZerologHandler) Debug(msg string, args ...any) {
	withFields(handler.logger.Debug(), args).Msg(msg)
}

// withFields attaches slog-style key/value pairs to a zerolog event.
// A dangling key is logged under "!BADKEY", matching slog.
func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

// LogBuild assembles a zerolog backed Logger writing to a file or a writer.
type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) Level(level string) *LogBuild {
	if l, err := zerolog.ParseLevel(level); err == nil && level != "" {
		build.level = l
	}
	return build
}

// Make opens the log file if a path was given and returns the Logger.
// The returned io.Closer closes that file; it is a no-op otherwise.
func (build *LogBuild) Make() (*ZerologHandler, io.Closer, error) {
	var writer io.Writer = os.Stdout
	if build.writer != nil {
		writer = build.writer
	}

	var closer io.Closer = nopCloser{}
	if build.path != "" {
		file, err := os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, nil, err
		}
		writer = zerolog.SyncWriter(file)
		closer = file
	}

	l := zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return NewZerolog(l), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
