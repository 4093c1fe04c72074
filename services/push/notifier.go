package pushsvc

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/session"
)

// ErrNoToken is returned by Listen before the device registered.
var ErrNoToken = errors.New("device not registered for push notifications")

// Registrar issues push tokens for the signed-in user.
type Registrar interface {
	RegisterPushToken(ctx context.Context) (string, error)
	BaseURL() string
}

// Notifier is the device side of push notifications.
type Notifier struct {
	registrar Registrar
	logger    core.Logger
	dialer    *websocket.Dialer

	mu        sync.Mutex
	token     string
	nextID    int
	received  map[int]func(session.Notification)
	responses map[int]func(session.NotificationResponse)
}

var _ session.Notifier = (*Notifier)(nil) // interface compliance check

func NewNotifier(registrar Registrar, logger core.Logger) *Notifier {
	return &Notifier{
		registrar: registrar,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
		received:  make(map[int]func(session.Notification)),
		responses: make(map[int]func(session.NotificationResponse)),
	}
}

func (n *Notifier) RegisterForPushNotifications(ctx context.Context) (string, error) {
	token, err := n.registrar.RegisterPushToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "registering push token")
	}
	n.mu.Lock()
	n.token = token
	n.mu.Unlock()
	return token, nil
}

func (n *Notifier) Token() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token
}

func (n *Notifier) AddNotificationReceivedListener(fn func(session.Notification)) session.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.received[id] = fn
	return session.SubscriptionFunc(func() {
		n.mu.Lock()
		delete(n.received, id)
		n.mu.Unlock()
	})
}

func (n *Notifier) AddNotificationResponseReceivedListener(fn func(session.NotificationResponse)) session.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.responses[id] = fn
	return session.SubscriptionFunc(func() {
		n.mu.Lock()
		delete(n.responses, id)
		n.mu.Unlock()
	})
}

// Tap reports that the user opened notif.
func (n *Notifier) Tap(notif session.Notification, actionID string) {
	n.mu.Lock()
	fns := make([]func(session.NotificationResponse), 0, len(n.responses))
	for _, fn := range n.responses {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	resp := session.NotificationResponse{Notification: notif, ActionID: actionID}
	for _, fn := range fns {
		fn(resp)
	}
}

func (n *Notifier) dispatch(notif session.Notification) {
	n.mu.Lock()
	fns := make([]func(session.Notification), 0, len(n.received))
	for _, fn := range n.received {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(notif)
	}
}

// wsURL turns the backend base URL into the websocket endpoint for token.
func wsURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parsing base URL")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/push/v1/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Listen receives notifications and hands them to the received listeners until ctx is done
// or the connection drops.
func (n *Notifier) Listen(ctx context.Context) error {
	token := n.Token()
	if token == "" {
		return ErrNoToken
	}
	endpoint, err := wsURL(n.registrar.BaseURL(), token)
	if err != nil {
		return err
	}

	ws, _, err := n.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "dialing push endpoint")
	}
	defer func() { _ = ws.Close() }()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = ws.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ctx.Err()
			}
			return errors.Wrap(err, "reading push message")
		}

		var msg Message
		if err = json.Unmarshal(data, &msg); err != nil {
			n.logger.Warn("discarding unreadable push message", err)
			continue
		}
		if msg.Type != MessageNotification {
			continue
		}
		var notif session.Notification
		if err = json.Unmarshal(msg.Data, &notif); err != nil {
			n.logger.Warn("discarding unreadable notification", err)
			continue
		}
		n.dispatch(notif)
	}
}
