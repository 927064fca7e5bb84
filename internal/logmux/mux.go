package logmux

import (
	"fmt"
	"sync"
	"time"
)

// Line sources.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
	SourceSystem = "procspawn"
)

// Line is one line of child output.
type Line struct {
	Timestamp time.Time
	Program   string
	Source    string
	Level     string
	Message   string
}

// Mux fans in output lines from the streams of child processes and delivers
// them via a bounded channel. When downstream consumers cannot keep up and
// the output buffer would overflow, the mux drops lines and emits a
// synthesized warning line carrying the number of discarded entries.
type Mux struct {
	out chan Line

	mu     sync.Mutex
	drops  map[dropKey]int
	inputs sync.WaitGroup
}

type dropKey struct {
	program string
	source  string
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan Line, size),
		drops: make(map[dropKey]int),
	}
}

// Output exposes the muxed line channel.
func (m *Mux) Output() <-chan Line {
	return m.out
}

// Add registers a new source channel. The mux consumes lines until the
// source channel is closed.
func (m *Mux) Add(source <-chan Line) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for line := range source {
			m.deliver(normalize(line))
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop
// metadata, and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(line Line) {
	key := dropKey{program: line.Program, source: line.Source}
	if !m.flushPending(key) {
		m.recordDrop(key, 1)
		return
	}
	if m.trySend(line) {
		return
	}
	m.recordDrop(key, 1)
}

func (m *Mux) flushPending(key dropKey) bool {
	for {
		count := m.takeDrops(key)
		if count == 0 {
			return true
		}
		if m.trySend(synthesizeDropLine(key, count)) {
			continue
		}
		m.recordDrop(key, count)
		return false
	}
}

func (m *Mux) takeDrops(key dropKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[key]
	delete(m.drops, key)
	return count
}

func (m *Mux) recordDrop(key dropKey, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[key] += count
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[dropKey]int)
	m.mu.Unlock()
	for key, count := range pending {
		if count == 0 {
			continue
		}
		m.out <- synthesizeDropLine(key, count)
	}
}

func (m *Mux) trySend(line Line) bool {
	select {
	case m.out <- line:
		return true
	default:
		return false
	}
}

func normalize(line Line) Line {
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}
	if line.Source == "" {
		line.Source = SourceStdout
	}
	if line.Level == "" {
		line.Level = inferLevel(line.Message)
	}
	if line.Level == "" {
		if line.Source == SourceStderr {
			line.Level = "warn"
		} else {
			line.Level = "info"
		}
	}
	return line
}

func synthesizeDropLine(key dropKey, count int) Line {
	return Line{
		Timestamp: time.Now(),
		Program:   key.program,
		Source:    SourceSystem,
		Level:     "warn",
		Message:   fmt.Sprintf("dropped=%d source=%s", count, key.source),
	}
}
