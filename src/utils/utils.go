package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"liftsim/src/config"
	"liftsim/src/types"
)

// InitLogger installs the default slog logger. Records go to w and, when cfg.File is set,
// to that file as well. The returned function closes the file.
func InitLogger(cfg config.LogConfig, w io.Writer) (func() error, error) {
	closeFn := func() error { return nil }
	if cfg.File != "" {
		logFile, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, logFile)
		closeFn = logFile.Close
	}
	slog.SetDefault(slog.New(NewHandler(w, cfg.SlogLevel())))
	return closeFn, nil
}

// NewHandler returns a text handler with short timestamps and file:line sources.
func NewHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("15:04:05"))
				}
			}
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					file := source.File
					if lastSlash := strings.LastIndexByte(file, '/'); lastSlash >= 0 {
						file = file[lastSlash+1:]
					}
					a.Value = slog.StringValue(fmt.Sprintf("%s:%d", file, source.Line))
				}
			}
			return a
		},
	})
}

// StatusLine renders one terminal line with the floor and state of each elevator.
func StatusLine(elevators []types.ElevatorView) string {
	var b strings.Builder
	for i, e := range elevators {
		if i > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%s: floor %d %s", e.Name, e.CurrentFloor, FormatStatus(e.Status))
		if e.ActiveRequests > 0 {
			fmt.Fprintf(&b, " (%d)", e.ActiveRequests)
		}
	}
	return b.String()
}

// PrintStatus overwrites the current terminal line with StatusLine.
func PrintStatus(w io.Writer, elevators []types.ElevatorView) {
	fmt.Fprintf(w, "\r%s    \r", StatusLine(elevators))
}

func FormatStatus(s types.ElevStatus) string {
	switch s {
	case types.Idle:
		return "idle"
	case types.MovingUp:
		return "up"
	case types.MovingDown:
		return "down"
	case types.Maintenance:
		return "maintenance"
	}
	return "unknown"
}
