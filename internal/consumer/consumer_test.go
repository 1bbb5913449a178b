package consumer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tenancy/internal/model"
)

type captureRecorder struct {
	warnings []model.TenancyWarning
}

func (c *captureRecorder) Record(w model.TenancyWarning) {
	c.warnings = append(c.warnings, w)
}

func TestConsumeLoopRecordsDecodableWarnings(t *testing.T) {
	rec := &captureRecorder{}
	c := &Consumer{
		StopChan: make(chan struct{}),
		DoneChan: make(chan struct{}),
		recorder: rec,
		logger:   zap.NewNop(),
	}

	body, err := json.Marshal(model.TenancyWarning{
		Route: "/tasks", Method: "POST",
		WarnType:   model.WarnMissingTenantWrite,
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{Body: body}
	msgs <- amqp.Delivery{Body: []byte("not json")}
	close(msgs)

	c.consumeLoop(msgs)
	<-c.DoneChan

	require.Len(t, rec.warnings, 1, "undecodable payloads go to the DLQ, not the tracker")
	assert.Equal(t, "/tasks", rec.warnings[0].Route)
	assert.Equal(t, model.WarnMissingTenantWrite, rec.warnings[0].WarnType)
}
