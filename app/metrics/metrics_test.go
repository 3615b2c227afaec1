package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveJob(t *testing.T) {
	before := testutil.ToFloat64(JobsTotal.WithLabelValues("completed"))

	ObserveJob("completed", "general", 3*time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(JobsTotal.WithLabelValues("completed")))
	assert.Positive(t, testutil.CollectAndCount(CompressDuration))
}
