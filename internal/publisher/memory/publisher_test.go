package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type runNote struct {
	Outlet string `json:"outlet"`
	Status string `json:"status"`
}

func TestPublisherGroupsByTopic(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id, err := pub.Publish(ctx, "coverage-runs", runNote{Outlet: "srf", Status: "failed"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	_, err = pub.Publish(ctx, "coverage-runs-dev", runNote{Outlet: "watson", Status: "succeeded"})
	require.NoError(t, err)
	id, err = pub.Publish(ctx, "coverage-runs", runNote{Outlet: "srf", Status: "succeeded"})
	require.NoError(t, err)
	require.Equal(t, "memory-3", id)

	require.Len(t, pub.Messages(), 3)
	require.Len(t, pub.Topic("coverage-runs"), 2)
	require.Empty(t, pub.Topic("unused"))

	var note runNote
	require.NoError(t, pub.DecodeLast("coverage-runs", &note))
	require.Equal(t, runNote{Outlet: "srf", Status: "succeeded"}, note)
	require.JSONEq(t, `{"outlet":"watson","status":"succeeded"}`, string(pub.Topic("coverage-runs-dev")[0].Data))
}

func TestPublisherReturnsCopies(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "coverage-runs", runNote{Outlet: "srf"})
	require.NoError(t, err)

	msgs := pub.Messages()
	msgs[0].Topic = "modified"
	msgs[0].Data[0] = 'x'
	require.Equal(t, "coverage-runs", pub.Messages()[0].Topic)
	require.JSONEq(t, `{"outlet":"srf","status":""}`, string(pub.Messages()[0].Data))
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", runNote{})
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "coverage-runs", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, pub.Messages())
	require.Error(t, pub.DecodeLast("coverage-runs", &runNote{}))
}
