package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/model"
)

func TestNewNotifyServiceDisabled(t *testing.T) {
	assert.Nil(t, NewNotifyService(config.NotifyConfig{}, logger.NewNop()))
}

func TestNotifyJob(t *testing.T) {
	var got JobNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	svc := NewNotifyService(config.NotifyConfig{URL: srv.URL, Timeout: time.Second}, logger.NewNop())
	require.NotNil(t, svc)
	defer svc.Close()

	job := &model.CompressJob{UID: "u1", Input: "/a.mov", Output: "/a.mp4", Policy: "general", Status: model.JobStatusCompleted, OutputSize: 42}
	require.NoError(t, svc.NotifyJob(context.Background(), job))

	assert.Equal(t, "u1", got.UID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.EqualValues(t, 42, got.OutputSize)
}

func TestNotifyJobRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewNotifyService(config.NotifyConfig{URL: srv.URL, Timeout: time.Second}, logger.NewNop())
	defer svc.Close()

	err := svc.NotifyJob(context.Background(), &model.CompressJob{UID: "u2", Status: model.JobStatusFailed})
	assert.ErrorContains(t, err, "400")
}
