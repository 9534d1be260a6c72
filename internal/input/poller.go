package input

import (
	"io"
	"time"
)

// Poller turns a raw byte stream (typically stdin in raw mode via
// golang.org/x/term.MakeRaw) into decoded Keys, buffering partial escape
// sequences across ticks. Callers invoke Poll once per controller tick
// with a short budget; Poll never blocks longer than budget.
type Poller struct {
	r   io.Reader
	buf []byte
}

// NewPoller returns a Poller reading from r.
func NewPoller(r io.Reader) *Poller {
	return &Poller{r: r}
}

// deadlineReader is satisfied by readers that support a per-call
// deadline, e.g. *os.File on platforms where SetReadDeadline works on a
// TTY. Pollers over a plain io.Reader (tests, pipes) simply skip this.
type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Poll drains any bytes currently available (bounded by budget when r
// supports read deadlines) and returns the decoded Keys, in order. Any
// trailing incomplete escape sequence is retained for the next call.
func (p *Poller) Poll(budget time.Duration) []Key {
	if dr, ok := p.r.(deadlineReader); ok {
		dr.SetReadDeadline(time.Now().Add(budget))
	}

	chunk := make([]byte, 256)
	n, _ := p.r.Read(chunk)
	if n > 0 {
		p.buf = append(p.buf, chunk[:n]...)
	}

	var keys []Key
	for len(p.buf) > 0 {
		key, consumed := Decode(p.buf, len(p.buf) > 1 || n > 0)
		if consumed == 0 {
			break
		}
		if key != (Key{}) {
			keys = append(keys, key)
		}
		p.buf = p.buf[consumed:]
	}
	return keys
}
