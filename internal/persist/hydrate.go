package persist

import (
	"context"
	"fmt"

	"rollcall/pkg/domain"
)

// Snapshotter is the part of the entity store persistence needs.
type Snapshotter interface {
	ExportState() domain.Snapshot
	ImportState(domain.Snapshot)
}

// Hydrate loads every whitelisted bucket from backend and imports the result
// into store. A bucket that was never saved starts empty; buckets outside the
// whitelist keep the store's current contents. It returns the buckets that
// were found.
func Hydrate(ctx context.Context, backend Backend, store Snapshotter, whitelist Whitelist) ([]Bucket, error) {
	base := store.ExportState()
	payloads := make(map[string][]byte, len(AllBuckets))
	var found []Bucket
	for _, bucket := range whitelist.Normalize() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch bucket {
		case BucketSettings:
			base.Settings = domain.DefaultSettings()
		case BucketPeople:
			base.People = map[string]domain.Person{}
		case BucketEvents:
			base.Events = map[string]domain.Event{}
		case BucketAttendance:
			base.Attendance = map[string]domain.Attendance{}
		}
		payload, ok, err := backend.Load(ctx, string(bucket))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", bucket, err)
		}
		if !ok || len(payload) == 0 {
			continue
		}
		payloads[string(bucket)] = payload
		found = append(found, bucket)
	}
	snapshot, err := Decode(base, payloads)
	if err != nil {
		return nil, err
	}
	store.ImportState(snapshot)
	return found, nil
}

// Save writes the whitelisted buckets of store to backend once, using a
// single batch when the backend supports it.
func Save(ctx context.Context, backend Backend, store Snapshotter, whitelist Whitelist) error {
	payloads, err := Encode(store.ExportState(), whitelist)
	if err != nil {
		return err
	}
	if batch, ok := backend.(BatchSaver); ok {
		return batch.SaveBuckets(ctx, payloads)
	}
	for _, bucket := range whitelist.Normalize() {
		if err := backend.Save(ctx, string(bucket), payloads[string(bucket)]); err != nil {
			return fmt.Errorf("save %s: %w", bucket, err)
		}
	}
	return nil
}
