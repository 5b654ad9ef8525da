package stream

import (
	"bufio"
	"io"
	"strings"
)

// event is one dispatched server-sent event.
type event struct {
	Name string
	Data string
}

// maxEventSize bounds a single SSE line; Gemini candidates can be large.
const maxEventSize = 1 << 20

// readEvents parses a text/event-stream body and calls fn for every event.
// fn returns false to stop reading.
func readEvents(r io.Reader, fn func(event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var name string
	var data []string
	dispatch := func() bool {
		if len(data) == 0 {
			name = ""
			return true
		}
		ev := event{Name: name, Data: strings.Join(data, "\n")}
		name, data = "", data[:0]
		return fn(ev)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if !dispatch() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	dispatch()
	return nil
}
