// Package logger provides a thread-safe in-memory activity log. The node
// records executed transactions and API activity here and serves the recent
// entries over HTTP.
package logger

import (
	"fmt"
	"sync"
	"time"
)

const defaultMaxSize = 200

// Message represents a single log message
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Level     string    `json:"level"` // info, warning, error
}

// Logger keeps the most recent messages in memory.
type Logger struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
	now      func() time.Time
}

// New creates a logger holding at most maxSize messages.
func New(maxSize int) *Logger {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Logger{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
		now:      time.Now,
	}
}

// Log adds a new message to the logger
func (l *Logger) Log(level, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, Message{Timestamp: l.now(), Text: text, Level: level})

	// Keep only the last maxSize messages
	if len(l.messages) > l.maxSize {
		l.messages = l.messages[len(l.messages)-l.maxSize:]
	}
}

func (l *Logger) Info(text string)    { l.Log("info", text) }
func (l *Logger) Warning(text string) { l.Log("warning", text) }
func (l *Logger) Error(text string)   { l.Log("error", text) }

// Infof formats an info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Log("info", fmt.Sprintf(format, args...))
}

// Errorf formats an error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Log("error", fmt.Sprintf(format, args...))
}

// GetRecent returns the most recent n messages (newest first)
func (l *Logger) GetRecent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.messages) || n < 0 {
		n = len(l.messages)
	}

	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = l.messages[len(l.messages)-1-i]
	}
	return result
}

// GetAll returns all messages (newest first)
func (l *Logger) GetAll() []Message {
	return l.GetRecent(-1)
}
