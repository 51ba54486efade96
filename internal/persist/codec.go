package persist

import (
	"encoding/json"
	"fmt"

	"rollcall/pkg/domain"
)

// Encode serializes the whitelisted slices of snapshot, one JSON document per bucket.
func Encode(snapshot domain.Snapshot, whitelist Whitelist) (map[string][]byte, error) {
	out := make(map[string][]byte, len(AllBuckets))
	for _, bucket := range whitelist.Normalize() {
		var value any
		switch bucket {
		case BucketSettings:
			value = snapshot.Settings
		case BucketPeople:
			value = nonNil(snapshot.People)
		case BucketEvents:
			value = nonNil(snapshot.Events)
		case BucketAttendance:
			value = nonNil(snapshot.Attendance)
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[string(bucket)] = data
	}
	return out, nil
}

// Decode fills the slices of base named in payloads. Buckets absent from
// payloads keep the value from base.
func Decode(base domain.Snapshot, payloads map[string][]byte) (domain.Snapshot, error) {
	out := base
	for name, data := range payloads {
		var target any
		switch Bucket(name) {
		case BucketSettings:
			target = &out.Settings
		case BucketPeople:
			out.People = nil
			target = &out.People
		case BucketEvents:
			out.Events = nil
			target = &out.Events
		case BucketAttendance:
			out.Attendance = nil
			target = &out.Attendance
		default:
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return domain.Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return out, nil
}

func nonNil[T any](m map[string]T) map[string]T {
	if m == nil {
		return map[string]T{}
	}
	return m
}
