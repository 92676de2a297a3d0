package refresh

import (
	"strings"
	"sync"
	"time"
)

// ringCapacity bounds memory; a full refresh logs a few hundred lines.
const ringCapacity = 1000

// Line is one pipeline log line with a monotonic sequence id. Clients that
// drop their SSE connection resume with ?since={seq}.
type Line struct {
	Seq  int64     `json:"seq"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Ring is a bounded log buffer with live subscribers. It also implements
// io.Writer so it can sit behind the zerolog tee: every pipeline log line
// lands here as well as on stderr.
type Ring struct {
	mu      sync.Mutex
	lines   []Line
	nextSeq int64
	subs    map[chan Line]struct{}
	partial strings.Builder
}

func NewRing() *Ring {
	return &Ring{subs: make(map[chan Line]struct{}), nextSeq: 1}
}

// Append adds one line and fans it out to subscribers. Slow subscribers are
// skipped, not blocked on; they recover via Since on reconnect.
func (r *Ring) Append(text string) Line {
	r.mu.Lock()
	ln := Line{Seq: r.nextSeq, Time: time.Now().UTC(), Text: text}
	r.nextSeq++
	r.lines = append(r.lines, ln)
	if len(r.lines) > ringCapacity {
		r.lines = r.lines[len(r.lines)-ringCapacity:]
	}
	for ch := range r.subs {
		select {
		case ch <- ln:
		default:
		}
	}
	r.mu.Unlock()
	return ln
}

// Write splits p on newlines and appends each complete line; a trailing
// fragment is held until its newline arrives.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.partial.Write(p)
	buffered := r.partial.String()
	r.partial.Reset()
	r.mu.Unlock()

	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimRight(buffered[:idx], "\r"); line != "" {
			r.Append(line)
		}
		buffered = buffered[idx+1:]
	}
	if buffered != "" {
		r.mu.Lock()
		r.partial.WriteString(buffered)
		r.mu.Unlock()
	}
	return len(p), nil
}

// Since returns buffered lines with Seq > seq, oldest first.
func (r *Ring) Since(seq int64) []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Line
	for _, ln := range r.lines {
		if ln.Seq > seq {
			out = append(out, ln)
		}
	}
	return out
}

// Subscribe registers a live channel. Always pair with Unsubscribe.
func (r *Ring) Subscribe() chan Line {
	ch := make(chan Line, 64)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

func (r *Ring) Unsubscribe(ch chan Line) {
	r.mu.Lock()
	delete(r.subs, ch)
	r.mu.Unlock()
}
