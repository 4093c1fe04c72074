package session

import "context"

// initializeNotifications replaces the notification listeners and registers the device in the background.
// Failures are logged and never block the caller.
func (m *Manager) initializeNotifications(ctx context.Context) {
	if m.notifier == nil {
		return
	}

	m.subMu.Lock()
	if m.closed {
		m.subMu.Unlock()
		return
	}
	for _, sub := range m.notifySubs {
		sub.Unsubscribe()
	}
	m.notifySubs = []Subscription{
		m.notifier.AddNotificationReceivedListener(m.onNotification),
		m.notifier.AddNotificationResponseReceivedListener(m.onNotificationResponse),
	}
	m.wg.Add(1)
	m.subMu.Unlock()

	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.SignInTimeout)
		defer cancel()
		token, err := m.notifier.RegisterForPushNotifications(ctx)
		if err != nil {
			m.logger.Error("registering for push notifications", err)
			return
		}
		if token == "" {
			m.logger.Warn("no push notification token obtained")
			return
		}
		m.mu.Lock()
		m.pushToken = token
		m.mu.Unlock()
		m.logger.Debug("push notification token stored")
	}()
}

func (m *Manager) onNotification(n Notification) {
	m.logger.Info("notification received", map[string]interface{}{
		"title": n.Title,
		"body":  n.Body,
		"data":  n.Data,
	})
}

func (m *Manager) onNotificationResponse(resp NotificationResponse) {
	data := resp.Notification.Data
	extras := map[string]interface{}{
		"title": resp.Notification.Title,
		"body":  resp.Notification.Body,
		"data":  data,
	}
	if data["type"] != "" && data["postId"] != "" {
		extras["type"] = data["type"]
		extras["post_id"] = data["postId"]
	}
	m.logger.Info("notification tapped", extras)
}
