// Package seed produces deterministic demo events and renders them as weekly Parquet
// partitions, the same layout the catalog serves.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

// Options controls event generation
type Options struct {
	Seed       int64
	Start      time.Time
	Days       int
	MinPerDay  int
	MaxPerDay  int
	Users      int
	EventTypes []string
	Plans      []string
}

// DefaultOptions generates two weeks of mixed traffic starting at start
func DefaultOptions(start time.Time) Options {
	return Options{
		Seed:       42,
		Start:      start,
		Days:       14,
		MinPerDay:  20,
		MaxPerDay:  60,
		Users:      25,
		EventTypes: []string{"pageview", "signup", "purchase"},
		Plans:      []string{"free", "pro", "team"},
	}
}

// Generate returns the events described by opts ordered by timestamp. The same options always
// produce the same events, ids included.
func Generate(opts Options) []typesdb.AnalyticsEvent {
	if opts.MaxPerDay < opts.MinPerDay {
		opts.MaxPerDay = opts.MinPerDay
	}
	if opts.Users <= 0 {
		opts.Users = 1
	}
	if len(opts.EventTypes) == 0 {
		opts.EventTypes = []string{"pageview"}
	}
	start := opts.Start.UTC().Truncate(24 * time.Hour)

	var events []typesdb.AnalyticsEvent
	for d := 0; d < opts.Days; d++ {
		day := start.AddDate(0, 0, d)
		daySeed := deterministicSeed(opts.Seed, day.Format("2006-01-02"))
		rng := rand.New(rand.NewSource(daySeed))

		n := opts.MinPerDay + rng.Intn(opts.MaxPerDay-opts.MinPerDay+1)
		for i := 0; i < n; i++ {
			user := rng.Intn(opts.Users)
			props := map[string]any{
				"path":   fmt.Sprintf("/page/%d", rng.Intn(10)),
				"amount": float64(rng.Intn(10000)) / 100,
			}
			if len(opts.Plans) > 0 {
				props["plan"] = opts.Plans[user%len(opts.Plans)]
			}
			events = append(events, typesdb.AnalyticsEvent{
				ID:         deterministicUUID(daySeed, fmt.Sprintf("event_%d", i)),
				Timestamp:  day.Add(time.Duration(rng.Intn(86400)) * time.Second),
				EventType:  opts.EventTypes[rng.Intn(len(opts.EventTypes))],
				DistinctID: fmt.Sprintf("user_%d", user),
				PersonID:   deterministicUUID(opts.Seed, fmt.Sprintf("person_%d", user)),
				Properties: props,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// deterministicSeed derives a seed from the master seed and a key
func deterministicSeed(masterSeed int64, key string) int64 {
	hasher := sha256.New()
	binary.Write(hasher, binary.LittleEndian, masterSeed)
	hasher.Write([]byte(key))
	hash := hasher.Sum(nil)
	return int64(binary.LittleEndian.Uint64(hash[:8]))
}

func deterministicUUID(seed int64, name string) string {
	hasher := sha256.New()
	binary.Write(hasher, binary.LittleEndian, seed)
	hasher.Write([]byte(name))
	hash := hasher.Sum(nil)

	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}
