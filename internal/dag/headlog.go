package dag

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	gocid "github.com/ipfs/go-cid"
)

// HeadLogEntry records one movement of HEAD.
type HeadLogEntry struct {
	Old     string `refmt:"old,omitempty"` // empty before the first commit
	New     string `refmt:"new,omitempty"` // empty when a rollback returns to no commit
	Message string `refmt:"message"`
	Time    string `refmt:"time"`
}

func newHeadLogEntry(from, to gocid.Cid, message string, at time.Time) HeadLogEntry {
	e := HeadLogEntry{Message: message, Time: normalizeTime(at).Format(time.RFC3339Nano)}
	if from.Defined() {
		e.Old = from.String()
	}
	if to.Defined() {
		e.New = to.String()
	}
	return e
}

// HeadJournal is an append-only record of head movements. It is advisory:
// HEAD and the object graph stay authoritative when the two disagree.
type HeadJournal interface {
	Append(e HeadLogEntry) error
	Entries() ([]HeadLogEntry, error) // oldest first
}

var (
	_ HeadJournal = (*FileHeadLog)(nil)
	_ HeadJournal = (*MemoryHeadLog)(nil)
)

// FileHeadLog appends one JSON line per entry to a file.
type FileHeadLog struct {
	mu   sync.Mutex
	path string
}

func NewFileHeadLog(path string) *FileHeadLog {
	return &FileHeadLog{path: path}
}

func (l *FileHeadLog) Append(e HeadLogEntry) error {
	data, err := EncodeJSON(e, false)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := SafeAppend(l.path, append(data, '\n')); err != nil {
		return fmt.Errorf("write head log entry: %w", err)
	}
	return nil
}

func (l *FileHeadLog) Entries() ([]HeadLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil // no journal yet
	}
	if err != nil {
		return nil, fmt.Errorf("open head log: %w", err)
	}
	defer f.Close()

	var entries []HeadLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e HeadLogEntry
		if err := DecodeJSON(scanner.Bytes(), &e); err != nil {
			continue // skip torn or malformed lines
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// MemoryHeadLog keeps the journal in memory.
type MemoryHeadLog struct {
	mu      sync.Mutex
	entries []HeadLogEntry
}

func (l *MemoryHeadLog) Append(e HeadLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *MemoryHeadLog) Entries() ([]HeadLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]HeadLogEntry(nil), l.entries...), nil
}
