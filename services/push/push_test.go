package pushsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/session/sessiontest"
)

type fakeRegistrar struct {
	baseURL string
	token   string
	err     error
}

func (r fakeRegistrar) RegisterPushToken(context.Context) (string, error) { return r.token, r.err }
func (r fakeRegistrar) BaseURL() string                                   { return r.baseURL }

func Test_wsURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8000", want: "ws://localhost:8000/push/v1/ws?token=abc"},
		{base: "https://api.loopverse.app/", want: "wss://api.loopverse.app/push/v1/ws?token=abc"},
		{base: "https://api.loopverse.app/v2", want: "wss://api.loopverse.app/v2/push/v1/ws?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := wsURL(tt.base, "abc")
			if err != nil {
				t.Fatalf("wsURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("wsURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotifier_RegisterForPushNotifications(t *testing.T) {
	n := NewNotifier(fakeRegistrar{err: session.ErrRejected}, &sessiontest.Logger{})
	if _, err := n.RegisterForPushNotifications(context.Background()); !errors.Is(err, session.ErrRejected) {
		t.Errorf("RegisterForPushNotifications() error = %v, wantErr %v", err, session.ErrRejected)
	}
	if err := n.Listen(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("Listen() error = %v, wantErr %v", err, ErrNoToken)
	}
}

func TestNotifier_Tap(t *testing.T) {
	n := NewNotifier(fakeRegistrar{}, &sessiontest.Logger{})
	var got []session.NotificationResponse
	sub := n.AddNotificationResponseReceivedListener(func(resp session.NotificationResponse) {
		got = append(got, resp)
	})

	notif := session.Notification{ID: "n-1", Title: "New post", Data: map[string]string{"type": "announcement", "postId": "42"}}
	n.Tap(notif, "open")
	sub.Unsubscribe()
	n.Tap(notif, "open")

	if len(got) != 1 || got[0].ActionID != "open" || got[0].Notification.Data["postId"] != "42" {
		t.Errorf("responses = %+v, want one tap", got)
	}
}

func TestHub_delivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := &sessiontest.Logger{}
	hub := NewHub(logger, core.PushConfig{PingInterval: time.Second})
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the test token is the user id
		if err := hub.ServeWS(w, r, r.URL.Query().Get("token")); err != nil {
			t.Errorf("ServeWS() error = %v", err)
		}
	}))
	defer srv.Close()

	n := NewNotifier(fakeRegistrar{baseURL: srv.URL, token: "u-1"}, logger)
	if _, err := n.RegisterForPushNotifications(ctx); err != nil {
		t.Fatalf("RegisterForPushNotifications() error = %v", err)
	}
	received := make(chan session.Notification, 1)
	n.AddNotificationReceivedListener(func(notif session.Notification) { received <- notif })

	listenCtx, stopListening := context.WithCancel(ctx)
	listenErr := make(chan error, 1)
	go func() { listenErr <- n.Listen(listenCtx) }()

	// wait for the device to register
	deadline := time.Now().Add(2 * time.Second)
	for {
		reached, err := hub.Send(ctx, []string{"u-1", "u-2"}, session.Notification{Title: "Class moved", Body: "Room 4B"})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if reached == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case notif := <-received:
		if notif.Title != "Class moved" || notif.ID == "" || notif.SentAt.IsZero() {
			t.Errorf("received %+v", notif)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}

	stopListening()
	select {
	case err := <-listenErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Listen() error = %v, want %v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen() did not return")
	}

	cancel()
	<-runDone
	if _, err := hub.Send(context.Background(), []string{"u-1"}, session.Notification{}); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Send() after Run returned error = %v, want %v", err, ErrHubClosed)
	}
}
