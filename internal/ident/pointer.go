package ident

import (
	"fmt"
	"strings"
	"time"
)

const (
	// pointerLayout renders microsecond precision with a literal Z so the
	// value stays fixed-width and lexicographically sortable.
	pointerLayout = "2006-01-02T15:04:05.000000Z"
	// bucketLayout is the hour-aligned grouping key for negotiations.
	bucketLayout = "2006-01-02T15:00:00Z"

	memoryInfix = "_mem_"
)

// FreshPointer mints a new session pointer for the given instant.
func FreshPointer(now time.Time) string {
	return now.UTC().Format(pointerLayout)
}

// CurrentSessionBucket returns the hour-aligned bucket the instant falls in.
func CurrentSessionBucket(now time.Time) string {
	return now.UTC().Format(bucketLayout)
}

// BucketBefore returns the bucket one hour earlier than the given bucket.
// Malformed input is returned unchanged.
func BucketBefore(bucket string) string {
	t, err := time.Parse(bucketLayout, bucket)
	if err != nil {
		return bucket
	}
	return t.Add(-time.Hour).UTC().Format(bucketLayout)
}

// BucketFor returns the hour-aligned bucket containing the given epoch
// seconds.
func BucketFor(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format(bucketLayout)
}

// MemoryPointer builds the self-describing memory identifier for a contact.
func MemoryPointer(contact, memoryStamp string) string {
	return contact + memoryInfix + memoryStamp
}

// SplitMemoryPointer recovers the contact and timestamp halves of a memory
// pointer.
func SplitMemoryPointer(pointer string) (contact, stamp string, err error) {
	i := strings.LastIndex(pointer, memoryInfix)
	if i < 0 {
		return "", "", fmt.Errorf("not a memory pointer: %q", pointer)
	}
	return pointer[:i], pointer[i+len(memoryInfix):], nil
}

// PointerAge reports how long ago the pointer (or memory timestamp) was
// minted. A parse failure yields ErrMalformedTimestamp.
func PointerAge(pointer string, now time.Time) (time.Duration, error) {
	secs, err := ParseTimestamp(pointer)
	if err != nil {
		return 0, err
	}
	return now.UTC().Sub(time.Unix(secs, 0).UTC()), nil
}
