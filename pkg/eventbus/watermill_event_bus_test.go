package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/licensehub/pkg/channels/gochannel"
	"github.com/dukex/licensehub/pkg/eventbus"
	"github.com/dukex/licensehub/pkg/events"
	"github.com/dukex/licensehub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan *events.Event, 1)

	require.NoError(t, bus.Handle(events.ApprovedEvent, func(_ context.Context, event *events.Event) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	inst := &models.WorkflowInstance{ID: "wf-1", Type: models.RequestTypeBudgetApproval}
	ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	ignored := events.New(events.StepAdvancedEvent, inst, ts)
	require.NoError(t, bus.Publish(ctx, inst.ID, ignored))

	approved := events.New(events.ApprovedEvent, inst, ts)
	approved.StepNumber = 3
	approved.ActorID = "ceo-1"
	require.NoError(t, bus.Publish(ctx, inst.ID, approved))

	select {
	case event := <-received:
		assert.Equal(t, events.ApprovedEvent, event.Type)
		assert.Equal(t, "wf-1", event.InstanceID)
		assert.Equal(t, models.RequestTypeBudgetApproval, event.RequestType)
		assert.Equal(t, 3, event.StepNumber)
		assert.Equal(t, "ceo-1", event.ActorID)
		assert.True(t, ts.Equal(event.Timestamp))
	case <-ctx.Done():
		t.Fatal("approved event was not delivered")
	}
}

func TestRecorder(t *testing.T) {
	recorder := eventbus.NewRecorder()
	inst := &models.WorkflowInstance{ID: "wf-2", Type: models.RequestTypeUserInvitation}

	require.NoError(t, recorder.Publish(context.Background(), inst.ID, events.New(events.CancelledEvent, inst, time.Now())))

	assert.Equal(t, []events.EventType{events.CancelledEvent}, recorder.Types())
	assert.Equal(t, []string{"wf-2"}, recorder.Keys())

	recorder.Reset()
	assert.Empty(t, recorder.Events())
}
