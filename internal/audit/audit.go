// Package audit records who did what to which resource. Every entry goes
// to the process log as a single JSON line; when an audit sheet is
// configured, the entry is also appended there, best-effort.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Appender is the slice of the tabular gateway the logger needs.
type Appender interface {
	AppendRow(ctx context.Context, sheetName string, record map[string]string) error
}

// Entry is one audit record.
type Entry struct {
	Time   string `json:"time"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Target string `json:"target"`
	Detail string `json:"detail,omitempty"`
}

// Logger writes audit entries.
type Logger struct {
	sheet    string
	appender Appender
	now      func() time.Time
}

// New builds a logger. sheet may be empty, in which case entries go to
// the process log only.
func New(appender Appender, sheet string) *Logger {
	return &Logger{sheet: sheet, appender: appender, now: time.Now}
}

// Record logs one mutation. The sheet append runs in the background and
// never blocks or fails the mutation it describes.
func (l *Logger) Record(ctx context.Context, actor, action, target, detail string) {
	entry := Entry{
		Time:   l.now().UTC().Format(time.RFC3339),
		Actor:  actor,
		Action: action,
		Target: target,
		Detail: detail,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("audit: marshal entry: %v", err)
		return
	}
	log.Printf("audit: %s", line)

	if l.sheet == "" || l.appender == nil {
		return
	}
	go func() {
		appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		record := map[string]string{
			"time":   entry.Time,
			"actor":  entry.Actor,
			"action": entry.Action,
			"target": entry.Target,
			"detail": entry.Detail,
		}
		if err := l.appender.AppendRow(appendCtx, l.sheet, record); err != nil {
			log.Printf("audit: append to %s: %v", l.sheet, err)
		}
	}()
}
