package amqp

import (
	"encoding/json"
	"time"

	"fintrix/internal/jobs"

	"github.com/google/uuid"
)

// attemptHeader carries the delivery attempt so retries survive a
// round trip through the broker even if the body is re-encoded elsewhere.
const attemptHeader = "x-attempt"

// encodeRecurringDue fills in the publish defaults on job and returns its
// wire form.
func encodeRecurringDue(job *jobs.RecurringDue) ([]byte, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	return json.Marshal(job)
}

func decodeRecurringDue(data []byte) (*jobs.RecurringDue, error) {
	var job jobs.RecurringDue
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// attemptFromHeaders prefers the header over the body value.
func attemptFromHeaders(h map[string]interface{}, fallback int) int {
	attempt := fallback
	switch v := h[attemptHeader].(type) {
	case int32:
		attempt = int(v)
	case int64:
		attempt = int(v)
	case int:
		attempt = v
	case int16:
		attempt = int(v)
	case int8:
		attempt = int(v)
	}
	if attempt < 1 {
		attempt = 1
	}
	return attempt
}
