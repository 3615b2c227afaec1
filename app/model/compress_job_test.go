package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompressJobRetry(t *testing.T) {
	job := &CompressJob{MaxRetryCount: 2}
	job.SetProcessing()

	job.SetRetryableError(errors.New("first"))
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.CanRetry())

	job.SetProcessing()
	job.SetRetryableError(errors.New("second"))
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "second", job.LastError)
	assert.NotNil(t, job.CompletedAt)
	assert.False(t, job.CanRetry())
}

func TestCompressJobCompleted(t *testing.T) {
	job := &CompressJob{MaxRetryCount: 3, LastError: "old"}
	job.SetProcessing()
	job.SetCompleted(1024, 1500*time.Millisecond)

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.EqualValues(t, 1024, job.OutputSize)
	assert.EqualValues(t, 1500, job.ElapsedMillis)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.LastError)
	assert.True(t, job.IsFinished())
}

func TestCompressJobRequeue(t *testing.T) {
	job := &CompressJob{}
	job.SetProcessing()
	job.Progress = 40
	job.Requeue()

	assert.Equal(t, JobStatusPending, job.Status)
	assert.Zero(t, job.Progress)
	assert.Nil(t, job.StartedAt)
}
