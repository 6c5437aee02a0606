package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// LogLevel defines logging severity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// ParseLogLevel maps a config value to a level, falling back to INFO
func ParseLogLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LogLevelInfo
}

// StructuredLogger writes JSON lines with PII masking
type StructuredLogger struct {
	mu      sync.Mutex
	level   LogLevel
	output  io.Writer
	masking bool
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	Provider      string                 `json:"provider,omitempty"`
	Operation     string                 `json:"operation,omitempty"`
	Latency       int64                  `json:"latency_ms,omitempty"`
	ErrorCode     string                 `json:"error_code,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

func NewStructuredLogger(level LogLevel, enableMasking bool, output io.Writer) *StructuredLogger {
	if output == nil {
		output = os.Stdout
	}
	return &StructuredLogger{
		level:   level,
		output:  output,
		masking: enableMasking,
	}
}

// Log writes a structured log entry. The caller's map is never modified.
func (sl *StructuredLogger) Log(level LogLevel, message string, fields map[string]interface{}) {
	if !sl.shouldLog(level) {
		return
	}

	if sl.masking {
		fields = maskPII(fields)
	} else {
		fields = copyFields(fields)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Message:   message,
	}

	// promote the common fields to the top level
	if v, ok := fields["correlation_id"].(string); ok {
		entry.CorrelationID = v
		delete(fields, "correlation_id")
	}
	if v, ok := fields["transaction_id"].(string); ok {
		entry.TransactionID = v
		delete(fields, "transaction_id")
	}
	if v, ok := fields["provider"].(string); ok {
		entry.Provider = v
		delete(fields, "provider")
	}
	if v, ok := fields["operation"].(string); ok {
		entry.Operation = v
		delete(fields, "operation")
	}
	if v, ok := fields["latency_ms"].(int64); ok {
		entry.Latency = v
		delete(fields, "latency_ms")
	}
	if v, ok := fields["error_code"].(string); ok {
		entry.ErrorCode = v
		delete(fields, "error_code")
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal log entry: %v", err)
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	fmt.Fprintln(sl.output, string(jsonBytes))
}

func (sl *StructuredLogger) Info(message string, fields map[string]interface{}) {
	sl.Log(LogLevelInfo, message, fields)
}

func (sl *StructuredLogger) Warn(message string, fields map[string]interface{}) {
	sl.Log(LogLevelWarn, message, fields)
}

func (sl *StructuredLogger) Error(message string, fields map[string]interface{}) {
	sl.Log(LogLevelError, message, fields)
}

func (sl *StructuredLogger) Debug(message string, fields map[string]interface{}) {
	sl.Log(LogLevelDebug, message, fields)
}

// Fatal logs a fatal level message and exits
func (sl *StructuredLogger) Fatal(message string, fields map[string]interface{}) {
	sl.Log(LogLevelFatal, message, fields)
	os.Exit(1)
}

func (sl *StructuredLogger) shouldLog(level LogLevel) bool {
	return levelRank[level] >= levelRank[sl.level]
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// maskPII masks sensitive information in log fields
func maskPII(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(fields))

	for k, v := range fields {
		key := strings.ToLower(k)

		switch {
		case strings.Contains(key, "card"):
			if s, ok := v.(string); ok {
				masked[k] = maskCardNumber(s)
			} else {
				masked[k] = "[REDACTED]"
			}
		case strings.Contains(key, "cvc"),
			strings.Contains(key, "cvv"),
			strings.Contains(key, "password"),
			strings.Contains(key, "secret"),
			strings.Contains(key, "token"):
			if s, ok := v.(string); ok {
				masked[k] = maskString(s)
			} else {
				masked[k] = "[REDACTED]"
			}
		case key == "email":
			if email, ok := v.(string); ok {
				masked[k] = maskEmail(email)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}

// maskString shows only the first and last 4 characters
func maskString(s string) string {
	if len(s) <= 8 {
		return "[REDACTED]"
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func maskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[REDACTED]"
	}

	username := parts[0]
	domain := parts[1]

	maskedUsername := ""
	if len(username) <= 2 {
		maskedUsername = strings.Repeat("*", len(username))
	} else {
		maskedUsername = string(username[0]) + strings.Repeat("*", len(username)-2) + string(username[len(username)-1])
	}

	return maskedUsername + "@" + domain
}

var nonDigits = regexp.MustCompile(`\D`)

// maskCardNumber keeps the last 4 digits only
func maskCardNumber(cardNumber string) string {
	digits := nonDigits.ReplaceAllString(cardNumber, "")

	if len(digits) < 4 {
		return "[REDACTED]"
	}

	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

var (
	appLogger *StructuredLogger
	loggerMu  sync.Mutex
)

// InitLogger initializes the global logger
func InitLogger(level LogLevel, enablePIIMasking bool) *StructuredLogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	appLogger = NewStructuredLogger(level, enablePIIMasking, os.Stdout)
	return appLogger
}

// GetLogger returns the global logger instance
func GetLogger() *StructuredLogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if appLogger == nil {
		appLogger = NewStructuredLogger(LogLevelInfo, true, os.Stdout)
	}
	return appLogger
}
