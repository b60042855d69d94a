// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspcsoft/device-controller/pkg/models"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New(4)
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(models.NewSceneStarted("evening"))

	for _, ch := range []<-chan models.Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, models.EventSceneStarted, evt.Type)
			assert.Equal(t, "evening", evt.Name)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestSlowSubscriberLosesEventsWithoutBlocking(t *testing.T) {
	b := New(2)
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Publish(models.NewChannelConnected(uint32(i)))
	}

	// Only the buffered two survive.
	assert.Len(t, ch, 2)
	first := <-ch
	assert.Equal(t, uint32(0), first.ChannelID)
}

func TestCancelClosesChannelAndDropsSubscriber(t *testing.T) {
	b := New(4)
	ch, cancel := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	cancel()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// A second cancel is a no-op.
	cancel()
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := New(4)
	b.Publish(models.NewSceneCompleted("noop", true))
	assert.Equal(t, 0, b.SubscriberCount())
}
