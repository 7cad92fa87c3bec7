// Package profile describes how worker count and speed change over the
// course of a run.
//
// A profile is a sorted list of entries keyed by run progress:
// milliseconds for time-bound runs, iterations for iteration-bound runs.
// The entry in effect at a given progress is the last one whose key is not
// greater than the progress.
package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrEmpty is returned when a profile has no entries.
var ErrEmpty = errors.New("profile has no entries")

// Request is the configuration a profile asks for.
type Request struct {
	Threads int
	Speed   int
}

// Entry is a request taking effect at a progress point.
type Entry struct {
	At      int64
	Threads int
	Speed   int
}

// Profile maps run progress to requests.
//
// A Profile is immutable once built and safe for concurrent use.
type Profile struct {
	entries    []Entry
	autoReplay bool
}

// FromEntries builds a profile. Entries may be given in any order; a later
// entry with the same key replaces an earlier one.
func FromEntries(entries []Entry, autoReplay bool) (*Profile, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	byKey := make(map[int64]Entry, len(entries))
	for i, e := range entries {
		if e.At < 0 {
			return nil, fmt.Errorf("entry %d: negative progress %d", i, e.At)
		}
		if e.Threads < 1 {
			return nil, fmt.Errorf("entry %d: threads must be at least 1", i)
		}
		if e.Speed < 0 {
			return nil, fmt.Errorf("entry %d: speed must not be negative", i)
		}
		byKey[e.At] = e
	}

	sorted := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })

	return &Profile{entries: sorted, autoReplay: autoReplay}, nil
}

// At returns the request in effect at progress. With auto replay the
// profile repeats: progress is taken modulo the last entry's key. Before
// the first entry the first entry applies.
func (p *Profile) At(progress int64) Request {
	if p.autoReplay {
		if last := p.entries[len(p.entries)-1].At; last > 0 {
			progress %= last
		}
	}

	i := sort.Search(len(p.entries), func(i int) bool { return p.entries[i].At > progress })
	if i > 0 {
		i--
	}
	e := p.entries[i]
	return Request{Threads: e.Threads, Speed: e.Speed}
}

// Entries returns a copy of the sorted entries.
func (p *Profile) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// MaxThreads returns the highest worker count requested.
func (p *Profile) MaxThreads() int {
	most := 0
	for _, e := range p.entries {
		most = max(most, e.Threads)
	}
	return most
}

// LoadCSV reads a profile of "progress;threads;speed" lines. Blank lines
// and lines starting with # are skipped. Progress is an integer or a
// duration such as 1m30s, converted to milliseconds.
func LoadCSV(r io.Reader, autoReplay bool) (*Profile, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []Entry
	var errs []error
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		line, _ := reader.FieldPos(0)

		entry, err := parseRecord(record)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		entries = append(entries, entry)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid profile: %w", errors.Join(errs...))
	}
	return FromEntries(entries, autoReplay)
}

func parseRecord(record []string) (Entry, error) {
	if len(record) != 3 {
		return Entry{}, fmt.Errorf("expected 3 fields, got %d", len(record))
	}

	at, err := ParseProgress(record[0])
	if err != nil {
		return Entry{}, err
	}
	threads, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return Entry{}, fmt.Errorf("threads: not a number: %q", record[1])
	}
	speed, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return Entry{}, fmt.Errorf("speed: not a number: %q", record[2])
	}

	return Entry{At: at, Threads: threads, Speed: int(math.Round(speed))}, nil
}

// ParseProgress parses an integer progress or a duration in milliseconds.
func ParseProgress(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("progress: neither a number nor a duration: %q", s)
	}
	return d.Milliseconds(), nil
}
