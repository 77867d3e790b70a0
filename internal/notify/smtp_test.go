package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/syncprogress"
)

func testProgress() *syncprogress.Progress {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(95 * time.Second)
	return &syncprogress.Progress{
		SyncID:         "s1",
		ConnectorType:  "gmail",
		Status:         syncprogress.StatusComplete,
		TotalItems:     120,
		ProcessedItems: 118,
		FailedItems:    2,
		StartedAt:      &started,
		CompletedAt:    &completed,
	}
}

func TestSyncFinishedBuildsMessage(t *testing.T) {
	m := NewMailer(config.SMTPConfig{
		Host: "smtp.example.com", Port: "587",
		User: "mailer", Password: "secret",
		FromEmail: "noreply@lorekeep.app", FromName: "Lorekeep",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err := m.SyncFinished(context.Background(), "ana@example.com", testProgress())
	require.NoError(t, err)
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, "noreply@lorekeep.app", gotFrom)
	require.Equal(t, []string{"ana@example.com"}, gotTo)
	require.Contains(t, gotMsg, "Subject: Sync Completed with errors: Gmail")
	require.Contains(t, gotMsg, "Successfully processed: 118")
	require.Contains(t, gotMsg, "Failed: 2")
	require.Contains(t, gotMsg, "Duration: 1m 35s")
}

func TestSyncFinishedDisabledWithoutCredentials(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Host: "smtp.example.com", Port: "587"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("send should not be called when disabled")
		return nil
	}
	require.NoError(t, m.SyncFinished(context.Background(), "ana@example.com", testProgress()))
}

func TestSyncFinishedFailedStatus(t *testing.T) {
	m := NewMailer(config.SMTPConfig{User: "u", Password: "p", Host: "h", Port: "587"})
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	}
	p := testProgress()
	p.Status = syncprogress.StatusError
	p.ErrorMessage = "connector timed out"
	require.NoError(t, m.SyncFinished(context.Background(), "ana@example.com", p))
	require.Contains(t, gotMsg, "Subject: Sync Failed: Gmail")
	require.Contains(t, gotMsg, "Error: connector timed out")
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "12.3 seconds", FormatDuration(12300*time.Millisecond))
	require.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	require.True(t, strings.HasSuffix(FormatDuration(30*time.Second), "seconds"))
}
