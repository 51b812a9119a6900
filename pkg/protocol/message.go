package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// Control literals exchanged as frame bodies.
const (
	// ExitCommand tells the peer the sender is leaving.
	ExitCommand = "/exit"

	// AuthAccepted is the server's reply to valid credentials.
	AuthAccepted = "correct"
)

// TimeLayout is the clock format used for message timestamps.
const TimeLayout = "15:04:05"

// Message represents a chat line shown in the history
type Message struct {
	Time   string
	Author string
	Body   string
}

// String renders the message as "[time]author:body"
func (m Message) String() string {
	return fmt.Sprintf("[%s]%s:%s", m.Time, m.Author, m.Body)
}

// Notice is a plain informational line, such as a login prompt or server feedback.
type Notice string

func (n Notice) String() string {
	return string(n)
}

// FormatMessage builds the wire form of a chat line.
func FormatMessage(t time.Time, author, body string) string {
	return Message{Time: t.Format(TimeLayout), Author: author, Body: body}.String()
}

// ParseMessage decodes a chat line received from the peer.
// Control sequences are stripped so peer text cannot move the cursor.
// Payloads that are not in "[time]author:body" form become the body of a
// message stamped with the local clock.
func ParseMessage(payload []byte) Message {
	return parseMessage(payload, time.Now())
}

func parseMessage(payload []byte, now time.Time) Message {
	text := Sanitize(string(payload))
	if strings.HasPrefix(text, "[") {
		if end := strings.IndexByte(text, ']'); end > 0 {
			rest := text[end+1:]
			if colon := strings.IndexByte(rest, ':'); colon >= 0 {
				return Message{
					Time:   text[1:end],
					Author: rest[:colon],
					Body:   rest[colon+1:],
				}
			}
		}
	}
	return Message{Time: now.Format(TimeLayout), Body: text}
}

// Sanitize removes ANSI escape sequences and flattens line breaks so a
// record always occupies whole rows of the scrollback.
func Sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
