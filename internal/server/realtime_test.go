package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    "user-1",
		EventType: RealtimeEventMealPlanChanged,
		PlanIDs:   []int64{4, 7},
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventMealPlanChanged {
			t.Fatalf("expected event type %s, got %s", RealtimeEventMealPlanChanged, received.EventType)
		}
		if len(received.PlanIDs) != 2 {
			t.Fatalf("expected 2 plan ids, got %d", len(received.PlanIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{UserID: "user-3", EventType: RealtimeEventMealPlanChanged, PlanIDs: []int64{1}})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	_, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	if got := dispatcher.Subscribers("user-1"); got != 1 {
		t.Fatalf("expected one subscriber, got %d", got)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.Subscribers("user-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMealPlanStreamEmitsChangeEvents(t *testing.T) {
	server := newTestServer(t)
	token, userID := server.loginWithID(t, "planner", false)
	recipeID := createRecipeForPlans(t, server, token)

	httpServer := httptest.NewServer(server.handler)
	t.Cleanup(httpServer.Close)

	streamRequest, err := http.NewRequest(http.MethodGet, httpServer.URL+"/meal-plan/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamRequest.AddCookie(&http.Cookie{Name: "cookbook_session", Value: token})
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for server.realtime.Subscribers(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	createRequest, err := http.NewRequest(http.MethodPost, httpServer.URL+"/meal-plan",
		strings.NewReader(`{"recipe_id":`+strconv.FormatInt(recipeID, 10)+`,"planned_date":"2024-03-12"}`))
	if err != nil {
		t.Fatalf("failed to construct create request: %v", err)
	}
	createRequest.Header.Set("Authorization", "Bearer "+token)
	createRequest.Header.Set("Content-Type", "application/json")
	createResp, err := http.DefaultClient.Do(createRequest)
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	_ = createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", createResp.StatusCode)
	}

	reader := bufio.NewReader(streamResp.Body)
	type readResult struct {
		line string
		err  error
	}
	currentEvent := ""
	timeout := time.After(5 * time.Second)
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := reader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-timeout:
			t.Fatal("timed out waiting for meal plan event")
		case result := <-resultCh:
			if result.err != nil {
				t.Fatalf("failed to read stream: %v", result.err)
			}
			line := strings.TrimSpace(result.line)
			if strings.HasPrefix(line, "event:") {
				currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if !strings.HasPrefix(line, "data:") || currentEvent != RealtimeEventMealPlanChanged {
				continue
			}
			var payload realtimeEventPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload); err != nil {
				t.Fatalf("failed to decode event payload: %v", err)
			}
			if len(payload.PlanIDs) != 1 || payload.Source != realtimeSourceBackend {
				t.Fatalf("unexpected event payload: %+v", payload)
			}
			return
		}
	}
}
