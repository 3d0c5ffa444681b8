package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestQueueDeliversInOrder(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.TryPublish(schema.Signal{ID: "a"}))
	require.NoError(t, q.TryPublish(schema.Signal{ID: "b"}))
	q.Close()

	var got []string
	q.Run(context.Background(), func(s schema.Signal) {
		got = append(got, s.ID)
	})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQueueFullAndClosed(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(schema.Signal{ID: "a"}))
	assert.ErrorIs(t, q.TryPublish(schema.Signal{ID: "b"}), ErrQueueFull)

	q.Close()
	assert.ErrorIs(t, q.TryPublish(schema.Signal{ID: "c"}), ErrQueueClosed)
}
