package logmux

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// Record is a Line ready for JSON encoding.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Program   string    `json:"program"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// NewRecord converts a line into a structured record. A missing level is
// inferred from the message text.
func NewRecord(line Line) Record {
	level := line.Level
	if level == "" {
		if inferred := inferLevel(line.Message); inferred != "" {
			level = inferred
		} else {
			level = "info"
		}
	}
	source := line.Source
	if source == "" {
		source = SourceSystem
	}
	return Record{
		Timestamp: line.Timestamp,
		Program:   line.Program,
		Level:     level,
		Message:   line.Message,
		Source:    source,
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	return strings.ToLower(matches[1])
}

// Encode writes line as one JSON record, reporting failures to stderr.
func Encode(enc *json.Encoder, stderr io.Writer, line Line) {
	if enc == nil {
		return
	}
	record := NewRecord(line)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}
