package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
	color     bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource, color bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource, color: color}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var set fieldSet
	prefix := strings.Join(h.groups, ".")
	for _, attr := range h.attrs {
		set.add(prefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		set.add(prefix, attr)
		return true
	})
	kvs := set.fields

	var component, submissionID, stage string
	fields := make([]kv, 0, len(kvs))
	for _, kv := range kvs {
		switch kv.key {
		case FieldComponent:
			component = attrString(kv.value)
			continue
		case FieldSubmissionID:
			submissionID = attrString(kv.value)
			continue
		case FieldStage:
			stage = attrString(kv.value)
			continue
		}
		fields = append(fields, kv)
	}

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(fields)*32)
	h.writeHeader(&buf, timestamp, record.Level, component, submissionID, stage, message, record.Source())
	buf.WriteByte('\n')
	for _, field := range orderFields(fields) {
		if record.Level >= slog.LevelInfo && isDebugOnlyKey(field.key) {
			continue
		}
		buf.WriteString("    - ")
		buf.WriteString(displayLabel(field.key))
		buf.WriteString(": ")
		buf.WriteString(formatValue(field.value))
		buf.WriteByte('\n')
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, ts time.Time, level slog.Level, component, submissionID, stage, message string, src *slog.Source) {
	h.paint(buf, ansiDim, formatTimestamp(ts))
	buf.WriteByte(' ')
	label, color := levelStyle(level)
	h.paint(buf, color, label)
	if component != "" {
		buf.WriteString(" [")
		buf.WriteString(component)
		buf.WriteByte(']')
	}
	if subject := FormatSubject(submissionID, stage); subject != "" {
		buf.WriteByte(' ')
		h.paint(buf, ansiCyan, subject)
	}
	buf.WriteString(" - ")
	buf.WriteString(message)
	if h.addSource && src != nil {
		buf.WriteString(" [")
		buf.WriteString(filepath.Base(src.File))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(src.Line))
		buf.WriteByte(']')
	}
}

func (h *prettyHandler) paint(buf *bytes.Buffer, code, text string) {
	if !h.color || code == "" {
		buf.WriteString(text)
		return
	}
	buf.WriteString(code)
	buf.WriteString(text)
	buf.WriteString(ansiReset)
}

// FormatSubject builds the submission/stage subject shown in console headers.
func FormatSubject(submissionID, stage string) string {
	submissionID = strings.TrimSpace(submissionID)
	stage = strings.TrimSpace(stage)
	switch {
	case submissionID != "" && stage != "":
		return "Submission " + shortID(submissionID) + " (" + stage + ")"
	case submissionID != "":
		return "Submission " + shortID(submissionID)
	default:
		return stage
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(slices.Clip(h.attrs), attrs...)
	return &c
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.groups = append(slices.Clip(h.groups), name)
	return &c
}

type kv struct {
	key   string
	value slog.Value
}

// fieldSet keeps the first position of each key and the last value written to it.
type fieldSet struct {
	index  map[string]int
	fields []kv
}

func (f *fieldSet) add(prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	v := attr.Value.Resolve()
	key := joinKey(prefix, attr.Key)
	if v.Kind() == slog.KindGroup {
		for _, member := range v.Group() {
			f.add(key, member)
		}
		return
	}
	if key == "" {
		return
	}
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if pos, ok := f.index[key]; ok {
		f.fields[pos].value = v
		return
	}
	f.index[key] = len(f.fields)
	f.fields = append(f.fields, kv{key: key, value: v})
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// levelStyle returns the header label and colour for level.
func levelStyle(level slog.Level) (string, string) {
	switch {
	case level >= slog.LevelError:
		return "ERROR", ansiRed
	case level >= slog.LevelWarn:
		return "WARN", ansiYellow
	case level >= slog.LevelInfo:
		return "INFO", ""
	default:
		return "DEBUG", ansiDim
	}
}
