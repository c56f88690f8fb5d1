// Package message renders user-authored display text.
//
// Text holds {name} placeholders. The names a message may use depend on
// its kind. Unknown placeholders stay literal and {{ and }} escape braces.
package message

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	strftime "github.com/ncruces/go-strftime"

	"github.com/nhle/ambrose/internal/model"
)

// DefaultDateFormat is used by datetime messages without a format.
const DefaultDateFormat = "%b %d at %H%M"

// Invalid is rendered by task messages whose task no longer exists.
const Invalid = "Invalid"

var variables = map[model.MessageKind][]string{
	model.MessageText:     nil,
	model.MessageDateTime: {"datetime"},
	model.MessageTask:     {"value", "name", "prev_value", "has_changed", "last_update"},
	model.MessageRandom:   {"message"},
}

// Kinds returns every message kind.
func Kinds() []model.MessageKind {
	return []model.MessageKind{model.MessageText, model.MessageDateTime, model.MessageTask, model.MessageRandom}
}

// Variables returns the placeholder names available to kind.
func Variables(kind model.MessageKind) []string {
	return append([]string(nil), variables[kind]...)
}

// Normalize rewrites bare {} placeholders to the first variable of kind.
// Kinds without variables keep the text as written.
func Normalize(kind model.MessageKind, text string) string {
	vars := variables[kind]
	if len(vars) == 0 {
		return text
	}
	return strings.ReplaceAll(text, "{}", "{"+vars[0]+"}")
}

// Validate checks the kind-specific fields of a message.
func Validate(m model.Message) error {
	if _, ok := variables[m.Kind]; !ok {
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	if m.Kind == model.MessageDateTime && m.Timezone != "" {
		if _, err := time.LoadLocation(m.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %q", m.Timezone)
		}
	}
	if m.Kind == model.MessageTask && (m.TaskID == nil || *m.TaskID == "") {
		return fmt.Errorf("task message needs a task")
	}
	return nil
}

// Render produces the display text of msg at now. task is the bound task
// of a task message and is ignored by other kinds.
func Render(msg model.Message, task *model.Task, now time.Time) string {
	switch msg.Kind {
	case model.MessageDateTime:
		return substitute(msg.Text, map[string]string{"datetime": formatTime(msg, now)})

	case model.MessageTask:
		if task == nil {
			return Invalid
		}
		last := ""
		if task.LastUpdate != nil {
			last = task.LastUpdate.UTC().Format(time.RFC3339)
		}
		return substitute(msg.Text, map[string]string{
			"value":       task.Value,
			"name":        task.Name(),
			"prev_value":  task.PrevValue,
			"has_changed": strconv.FormatBool(task.HasChanged),
			"last_update": last,
		})

	case model.MessageRandom:
		if len(msg.Choices) == 0 {
			return ""
		}
		choice := msg.Choices[rand.IntN(len(msg.Choices))]
		return substitute(msg.Text, map[string]string{"message": choice})
	}
	return substitute(msg.Text, nil)
}

func formatTime(msg model.Message, now time.Time) string {
	loc := time.UTC
	if msg.Timezone != "" {
		if l, err := time.LoadLocation(msg.Timezone); err == nil {
			loc = l
		}
	}
	layout := msg.DateFormat
	if layout == "" {
		layout = DefaultDateFormat
	}
	return strftime.Format(layout, now.In(loc))
}

// substitute expands {name} placeholders found in values.
func substitute(text string, values map[string]string) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				b.WriteString(text[i:])
				return b.String()
			}
			name := text[i+1 : i+1+end]
			if v, ok := values[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(text[i : i+end+2])
			}
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
