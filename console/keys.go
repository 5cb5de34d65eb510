package console

import (
	"bufio"
	"io"
	"unicode"
	"unicode/utf8"

	"pkt.systems/termplex/schema"
)

// keyPress is one decoded key together with the bytes that produced it, so
// keys the console does not consume reach the shell unchanged.
type keyPress struct {
	event schema.KeyEvent
	raw   []byte
}

// readKeys decodes r into key presses until it fails or done is closed.
// out is closed on return.
func readKeys(r io.Reader, out chan<- keyPress, done <-chan struct{}) {
	defer close(out)
	br := bufio.NewReader(r)
	for {
		press, err := decodeKey(br)
		if err != nil {
			return
		}
		select {
		case out <- press:
		case <-done:
			return
		}
	}
}

func decodeKey(br *bufio.Reader) (keyPress, error) {
	b, err := br.ReadByte()
	if err != nil {
		return keyPress{}, err
	}
	switch {
	case b == 0x1b:
		if br.Buffered() == 0 {
			return keyPress{event: schema.KeyEvent{Key: "Escape"}, raw: []byte{b}}, nil
		}
		return readEscape(br)
	case b == '\r' || b == '\n':
		return keyPress{event: schema.KeyEvent{Key: "Enter"}, raw: []byte{b}}, nil
	case b == '\t':
		return keyPress{event: schema.KeyEvent{Key: "Tab"}, raw: []byte{b}}, nil
	case b == 0x7f || b == 0x08:
		return keyPress{event: schema.KeyEvent{Key: "Backspace"}, raw: []byte{b}}, nil
	case b >= 0x01 && b <= 0x1a:
		return keyPress{event: schema.KeyEvent{Key: string(rune('a' + b - 1)), Ctrl: true}, raw: []byte{b}}, nil
	case b < 0x20:
		return keyPress{raw: []byte{b}}, nil
	}
	r, raw, err := readRune(br, b)
	if err != nil {
		return keyPress{}, err
	}
	return keyPress{event: runeEvent(r), raw: raw}, nil
}

func readRune(br *bufio.Reader, first byte) (rune, []byte, error) {
	if first < utf8.RuneSelf {
		return rune(first), []byte{first}, nil
	}
	if err := br.UnreadByte(); err != nil {
		return 0, nil, err
	}
	r, _, err := br.ReadRune()
	if err != nil {
		return 0, nil, err
	}
	return r, utf8.AppendRune(nil, r), nil
}

func runeEvent(r rune) schema.KeyEvent {
	return schema.KeyEvent{Key: string(r), Shift: unicode.IsUpper(r)}
}

func readEscape(br *bufio.Reader) (keyPress, error) {
	b, err := br.ReadByte()
	if err != nil {
		return keyPress{}, err
	}
	switch b {
	case '[':
		return readCSI(br)
	case 'O':
		return readSS3(br)
	}
	if b < 0x20 {
		return keyPress{raw: []byte{0x1b, b}}, nil
	}
	r, raw, err := readRune(br, b)
	if err != nil {
		return keyPress{}, err
	}
	event := runeEvent(r)
	event.Alt = true
	return keyPress{event: event, raw: append([]byte{0x1b}, raw...)}, nil
}

func readCSI(br *bufio.Reader) (keyPress, error) {
	raw := []byte{0x1b, '['}
	var seq []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return keyPress{}, err
		}
		raw = append(raw, b)
		seq = append(seq, b)
		if b == '~' || unicode.IsLetter(rune(b)) {
			break
		}
		if len(seq) > 8 {
			return keyPress{raw: raw}, nil
		}
	}
	press := keyPress{raw: raw}
	switch string(seq) {
	case "A":
		press.event.Key = "Up"
	case "B":
		press.event.Key = "Down"
	case "C":
		press.event.Key = "Right"
	case "D":
		press.event.Key = "Left"
	case "H", "1~":
		press.event.Key = "Home"
	case "F", "4~":
		press.event.Key = "End"
	case "5~":
		press.event.Key = "PageUp"
	case "6~":
		press.event.Key = "PageDown"
	case "3~":
		press.event.Key = "Delete"
	case "Z", "1;2Z":
		press.event = schema.KeyEvent{Key: "Tab", Shift: true}
	}
	return press, nil
}

func readSS3(br *bufio.Reader) (keyPress, error) {
	b, err := br.ReadByte()
	if err != nil {
		return keyPress{}, err
	}
	press := keyPress{raw: []byte{0x1b, 'O', b}}
	switch b {
	case 'A':
		press.event.Key = "Up"
	case 'B':
		press.event.Key = "Down"
	case 'C':
		press.event.Key = "Right"
	case 'D':
		press.event.Key = "Left"
	case 'H':
		press.event.Key = "Home"
	case 'F':
		press.event.Key = "End"
	}
	return press, nil
}
