package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *log.Logger

// IsDebug enables debug-level output and caller reporting.
var IsDebug bool

// LogOptions controls how InitLogger builds the shared logger.
type LogOptions struct {
	Level string
	// File, when set, mirrors every line into a rotating log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// getColoredPrefix returns a styled prefix with colors
func getColoredPrefix() string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#0EA5E9")).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)
	return style.Render("anistream")
}

// InitLogger initializes the shared charmbracelet logger.
func InitLogger(opts LogOptions) {
	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 20),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		})
	}

	level := log.InfoLevel
	if opts.Level != "" {
		if parsed, err := log.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}
	if IsDebug {
		level = log.DebugLevel
	}

	Logger = log.NewWithOptions(out, log.Options{
		ReportCaller:    IsDebug,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          getColoredPrefix(),
		Level:           level,
	})
	Logger.SetColorProfile(termenv.TrueColor)
	if opts.File != "" {
		// ANSI escapes would end up in the rotated file.
		Logger.SetColorProfile(termenv.Ascii)
	}

	if level == log.DebugLevel {
		IsDebug = true
		Logger.Debug("Debug logging enabled", "file", opts.File)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Debug logs a debug message (only when debug mode is enabled)
func Debug(msg interface{}, keyvals ...interface{}) {
	if IsDebug && Logger != nil {
		Logger.Debug(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Info logs an info message
func Info(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(fmt.Sprintf("%v", msg), keyvals...)
	}
}

// Error logs an error message
func Error(msg interface{}, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(fmt.Sprintf("%v", msg), keyvals...)
	}
}
