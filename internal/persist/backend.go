// Package persist mirrors the entity store to a key-value backend and
// rehydrates it at startup.
package persist

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Backend is an asynchronous key-value store addressed by bucket name.
type Backend interface {
	// Load returns the last saved payload for bucket; ok is false when nothing
	// has been saved yet.
	Load(ctx context.Context, bucket string) (payload []byte, ok bool, err error)
	Save(ctx context.Context, bucket string, payload []byte) error
	Close() error
}

// BatchSaver is implemented by backends that can write several buckets
// atomically.
type BatchSaver interface {
	SaveBuckets(ctx context.Context, buckets map[string][]byte) error
}

// Bucket names one persisted slice of the snapshot.
type Bucket string

const (
	BucketSettings   Bucket = "settings"
	BucketPeople     Bucket = "people"
	BucketEvents     Bucket = "events"
	BucketAttendance Bucket = "attendance"
)

// AllBuckets lists every bucket in load order.
var AllBuckets = []Bucket{BucketSettings, BucketPeople, BucketEvents, BucketAttendance}

// Whitelist is the set of buckets the mirror persists. Settings is always a
// member, and attendance is only persisted together with people and events.
type Whitelist []Bucket

// DefaultWhitelist persists every bucket.
func DefaultWhitelist() Whitelist { return slices.Clone(Whitelist(AllBuckets)) }

// ParseWhitelist reads a comma-separated bucket list. An empty string yields
// the default whitelist.
func ParseWhitelist(raw string) (Whitelist, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultWhitelist(), nil
	}
	var names Whitelist
	for _, part := range strings.Split(raw, ",") {
		name := Bucket(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if !slices.Contains(AllBuckets, name) {
			return nil, fmt.Errorf("unknown bucket %q", name)
		}
		names = append(names, name)
	}
	return names.Normalize(), nil
}

// Normalize orders the whitelist canonically, drops unknown names, adds
// settings when missing and adds people and events when attendance is listed.
func (w Whitelist) Normalize() Whitelist {
	withParents := slices.Contains(w, BucketAttendance)
	out := Whitelist{BucketSettings}
	for _, b := range AllBuckets[1:] {
		if slices.Contains(w, b) || (withParents && (b == BucketPeople || b == BucketEvents)) {
			out = append(out, b)
		}
	}
	return out
}

// Contains reports whether b is whitelisted.
func (w Whitelist) Contains(b Bucket) bool { return slices.Contains(w.Normalize(), b) }

func (w Whitelist) String() string {
	names := make([]string, 0, len(w))
	for _, b := range w {
		names = append(names, string(b))
	}
	return strings.Join(names, ",")
}
