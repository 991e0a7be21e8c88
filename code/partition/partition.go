// Package partition names and dates the weekly partition files exported by the server.
package partition

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

var namePattern = regexp.MustCompile(`^events_(\d{4})_(\d{1,2})\.parquet$`)

// Key is the ISO year+week a partition covers
type Key struct {
	Year int
	Week int
}

// Name returns the canonical filename for the key
func (k Key) Name() string {
	return fmt.Sprintf("events_%04d_%02d.parquet", k.Year, k.Week)
}

// Start returns Monday 00:00 UTC of the ISO week.
func (k Key) Start() time.Time {
	// January 4th is always in ISO week 1
	jan4 := time.Date(k.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (k.Week-1)*7)
}

// End returns the exclusive end of the ISO week
func (k Key) End() time.Time {
	return k.Start().AddDate(0, 0, 7)
}

// KeyFor returns the partition key holding t
func KeyFor(t time.Time) Key {
	year, week := t.UTC().ISOWeek()
	return Key{Year: year, Week: week}
}

// Parse extracts the key from a partition filename. ok is false for names that do not follow
// the events_<year>_<week>.parquet pattern or carry an impossible week.
func Parse(name string) (Key, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Key{}, false
	}
	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return Key{}, false
	}
	return Key{Year: year, Week: week}, true
}

// Metadata builds the FileMetadata for a catalog entry. now decides whether the partition's
// week is still open, in which case ValidUntil is set to the end of that week.
func Metadata(name, checksum string, now time.Time) (typesdb.FileMetadata, bool) {
	key, ok := Parse(name)
	if !ok {
		return typesdb.FileMetadata{}, false
	}
	md := typesdb.FileMetadata{
		Name:       name,
		RangeStart: key.Start(),
		RangeEnd:   key.End(),
		Checksum:   checksum,
		Autoload:   true,
	}
	if now.Before(md.RangeEnd) {
		until := md.RangeEnd
		md.ValidUntil = &until
	}
	return md, true
}
