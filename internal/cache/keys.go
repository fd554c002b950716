package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func TaskKey(jobID uuid.UUID) string {
	return fmt.Sprintf("task:%s", jobID)
}

// RecordLatestKey holds the id of the record's most recent cache-known job,
// whose snapshot lives under TaskKey.
func RecordLatestKey(recordID string) string {
	return fmt.Sprintf("record:%s:latest", recordID)
}

func LockKey(recordID string) string {
	return fmt.Sprintf("lock:%s", recordID)
}

// RateKey is the per-second counter for a rate-limit bucket.
func RateKey(bucket string, second int64) string {
	return fmt.Sprintf("rl:%s:%d", bucket, second)
}

// ClientRateKey is the per-minute HTTP request counter for one client.
func ClientRateKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
