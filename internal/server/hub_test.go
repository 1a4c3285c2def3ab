package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quotapace/quotapace/internal/json"
	"github.com/quotapace/quotapace/internal/quota"
)

func resolutionWithUsed(used int) *quota.Resolution {
	return &quota.Resolution{
		Snapshot: quota.UsageSnapshot{
			UsedRequests: used,
			Source:       quota.SourcePrimaryInternal,
			FetchedAt:    time.Now(),
		},
	}
}

func startHubServer(t *testing.T, hub *Hub, latest *quota.Resolution) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Subscribe(w, r, latest)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame streamFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func TestHubReplaysLatestOnSubscribe(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, resolutionWithUsed(7))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame.Resolution == nil || frame.Resolution.Snapshot.UsedRequests != 7 {
		t.Errorf("replay frame = %+v, want the latest resolution", frame)
	}
}

func TestHubBroadcastsPublishedResolutions(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Publish until the subscriber is registered and a frame lands.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.Publish(resolutionWithUsed(9))
			time.Sleep(5 * time.Millisecond)
			hub.mu.Lock()
			n := len(hub.clients)
			hub.mu.Unlock()
			if n > 0 {
				return
			}
		}
	}()

	frame := readFrame(t, conn)
	<-done
	if frame.Resolution == nil || frame.Resolution.Snapshot.UsedRequests != 9 {
		t.Errorf("broadcast frame = %+v, want used=9", frame)
	}
}

func TestHubPublishErrorCarriesCodeAndRetry(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, resolutionWithUsed(1))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readFrame(t, conn) // replay

	hub.PublishError(quota.RateLimited(30 * time.Second))

	frame := readFrame(t, conn)
	if frame.Code != string(quota.CodeRateLimited) {
		t.Errorf("code = %q, want rate_limited", frame.Code)
	}
	if frame.RetryAfter != 30 {
		t.Errorf("retry_after_seconds = %d, want 30", frame.RetryAfter)
	}
}

func TestHubSubscribeDuringBroadcastStorm(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, resolutionWithUsed(3))

	// Hammer broadcasts while subscribers join, so replay writes overlap
	// broadcast writes on fresh connections.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Publish(resolutionWithUsed(4))
			}
		}
	}()

	for i := 0; i < 8; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatal(err)
		}
		readFrame(t, conn)
		conn.Close()
	}

	close(stop)
	wg.Wait()
}
