package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rbright/huddle/internal/capture"
	"github.com/rbright/huddle/internal/names"
)

// SessionIDLayout formats session ids and their directory names.
const SessionIDLayout = "2006-01-02_150405"

// ErrNoCaptures means a session directory holds no capture files.
var ErrNoCaptures = errors.New("no capture files found")

var captureName = regexp.MustCompile(`^(\d+)_(\d+)\.(pcm|wav)$`)

// LoadSessionDir rebuilds a Job from capture files named `<speaker>_<unixms>.pcm`.
// Offsets are relative to the earliest capture. The session time comes from a
// directory name in SessionIDLayout, else from the earliest capture.
func LoadSessionDir(dir string, loc *time.Location) (Job, error) {
	if loc == nil {
		loc = time.Local
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Job{}, fmt.Errorf("read session dir: %w", err)
	}

	type found struct {
		record  capture.Record
		started time.Time
	}
	captures := make([]found, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := captureName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		ms, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}
		captures = append(captures, found{
			record: capture.Record{
				SpeakerID:   match[1],
				DisplayName: names.Fallback(match[1]),
				Path:        filepath.Join(dir, entry.Name()),
				Bytes:       info.Size(),
			},
			started: time.UnixMilli(ms),
		})
	}
	if len(captures) == 0 {
		return Job{}, fmt.Errorf("%w in %s", ErrNoCaptures, dir)
	}

	sort.SliceStable(captures, func(i, j int) bool {
		return captures[i].started.Before(captures[j].started)
	})
	earliest := captures[0].started

	sessionID := filepath.Base(filepath.Clean(dir))
	startedAt, err := time.ParseInLocation(SessionIDLayout, sessionID, loc)
	if err != nil {
		startedAt = earliest.In(loc)
		sessionID = startedAt.Format(SessionIDLayout)
	}

	records := make([]capture.Record, 0, len(captures))
	for _, c := range captures {
		c.record.StartOffset = c.started.Sub(earliest)
		records = append(records, c.record)
	}

	return Job{
		SessionID: sessionID,
		Dir:       dir,
		StartedAt: startedAt,
		Zone:      loc.String(),
		Records:   records,
	}, nil
}
