// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SendRecv(t *testing.T) {
	tr := NewLocal([][]int{{0, 1}})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tr.Send(ctx, Envelope{FromRank: 0, ToRank: 1, Kind: "ping"}))

	msg, err := tr.Recv(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.Kind)
	assert.Equal(t, 0, msg.FromRank)
}

func TestLocal_FIFOPerSenderReceiver(t *testing.T) {
	tr := NewLocal([][]int{{0, 1}})
	defer tr.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Send(ctx, Envelope{FromRank: 0, ToRank: 1, Kind: "step", Payload: i}))
	}

	for i := 0; i < 5; i++ {
		msg, err := tr.Recv(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, i, msg.Payload)
	}
}

func TestLocal_Broadcast(t *testing.T) {
	tr := NewLocal([][]int{{0, 1, 2}})
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Send(ctx, Envelope{FromRank: 0, ToRank: EveryRank, Kind: "shutdown"}))

	for _, rank := range []int{0, 1, 2} {
		msg, err := tr.Recv(ctx, rank)
		require.NoError(t, err)
		assert.Equal(t, "shutdown", msg.Kind)
	}
}

func TestLocal_BufferedSendRequiresFlush(t *testing.T) {
	tr := NewLocal([][]int{{0, 1}})
	defer tr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, tr.SendBuffered(Envelope{FromRank: 0, ToRank: 1, Kind: "update"}))

	_, err := tr.Recv(ctx, 1)
	require.Error(t, err, "message should not be delivered before Flush")

	require.NoError(t, tr.Flush(context.Background()))

	msg, err := tr.Recv(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "update", msg.Kind)
}

func TestLocal_NodeTopology(t *testing.T) {
	tr := NewLocal([][]int{{0, 1}, {2, 3}})
	defer tr.Close()

	assert.Equal(t, 2, tr.Nodes())
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, tr.Ranks())
	assert.Equal(t, []int{2, 3}, tr.NodeRanks(1))
}

func TestLocal_CloseUnblocksRecv(t *testing.T) {
	tr := NewLocal([][]int{{0}})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := tr.Recv(ctx, 0)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
