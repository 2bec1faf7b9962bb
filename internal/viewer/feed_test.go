package viewer

import (
	"testing"
	"time"
)

func TestFeedLatest(t *testing.T) {
	feed := NewFeed()
	if _, ok := feed.Latest(); ok {
		t.Fatal("empty feed reported a latest frame")
	}

	vm := &ViewModel{GeneratedAt: testBase}
	feed.Publish(vm)
	got, ok := feed.Latest()
	if !ok || got != vm {
		t.Fatalf("Latest = %v, %v", got, ok)
	}
}

func TestFeedSubscribeReceivesLatestImmediately(t *testing.T) {
	feed := NewFeed()
	vm := &ViewModel{GeneratedAt: testBase}
	feed.Publish(vm)

	ch, cancel := feed.Subscribe()
	defer cancel()

	select {
	case got := <-ch:
		if got != vm {
			t.Fatalf("received %v, want %v", got, vm)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the queued frame")
	}
}

func TestFeedSlowSubscriberKeepsNewest(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	first := &ViewModel{GeneratedAt: testBase}
	second := &ViewModel{GeneratedAt: testBase.Add(time.Second)}
	feed.Publish(first)
	feed.Publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Fatalf("received stale frame %v", got.GeneratedAt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestFeedCancelStopsDelivery(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	// Publishing after cancel must not panic.
	feed.Publish(&ViewModel{GeneratedAt: testBase})
}

func TestFeedClose(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()
	feed.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after feed close")
	}

	// Subscribing after close yields a closed channel.
	ch2, cancel2 := feed.Subscribe()
	defer cancel2()
	if _, ok := <-ch2; ok {
		t.Fatal("expected closed channel from closed feed")
	}
}
