package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleJob() *models.ImportJob {
	msg := "lease: commit failed"
	return &models.ImportJob{
		ID:             "job-1",
		OrganizationID: "org-1",
		FileName:       "portfolio.xlsx",
		ImportType:     models.ImportTypeCombined,
		Status:         models.ImportFailed,
		TotalRows:      12,
		SuccessCount:   7,
		ErrorCount:     1,
		ErrorMessage:   &msg,
	}
}

func TestEventTypeFor(t *testing.T) {
	cases := map[models.ImportJobStatus]EventType{
		models.ImportValidated: EventImportValidated,
		models.ImportFailed:    EventImportFailed,
		models.ImportCancelled: EventImportCancelled,
		models.ImportCompleted: EventImportCompleted,
	}
	for status, want := range cases {
		got, ok := EventTypeFor(status)
		assert.True(t, ok, status)
		assert.Equal(t, want, got)
	}

	_, ok := EventTypeFor(models.ImportProcessing)
	assert.False(t, ok)
}

func TestNewImportEvent(t *testing.T) {
	event := NewImportEvent(EventImportFailed, sampleJob())

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "property-import-service", event.Source)
	assert.Equal(t, "job-1", event.Data.JobID)
	assert.Equal(t, 7, event.Data.SuccessCount)
	require.NotNil(t, event.Data.ErrorMessage)
	assert.Equal(t, "lease: commit failed", *event.Data.ErrorMessage)
	assert.NotEqual(t, event.ID, NewImportEvent(EventImportFailed, sampleJob()).ID)
}

func TestWatermillEventPublisher_Publish(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(context.Background(), "imports")
	require.NoError(t, err)

	publisher := NewWatermillEventPublisher(pubSub, "imports", testLogger())
	event := NewImportEvent(EventImportCompleted, sampleJob())
	require.NoError(t, publisher.PublishImportEvent(context.Background(), event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, "import.completed", msg.Metadata.Get("event_type"))
		assert.Equal(t, "org-1", msg.Metadata.Get("organization_id"))

		var decoded ImportEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, "portfolio.xlsx", decoded.Data.FileName)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestMockEventPublisher(t *testing.T) {
	mock := NewMockEventPublisher(testLogger())

	require.NoError(t, mock.PublishImportEvent(context.Background(), NewImportEvent(EventImportValidated, sampleJob())))
	require.Len(t, mock.GetPublishedEvents(), 1)
	assert.Equal(t, EventImportValidated, mock.GetPublishedEvents()[0].Type)

	mock.ClearEvents()
	assert.Empty(t, mock.GetPublishedEvents())
	assert.NoError(t, mock.Close())
}
