// Package notify raises freedesktop desktop notifications over the D-Bus
// session bus.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/godbus/dbus/v5"
)

// freedesktop notification D-Bus constants
const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	appName       = "focuspet"
	expireDefault = int32(-1)
)

// Notifier shows a short message to the user
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
	Close() error
}

// Nop discards notifications
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }
func (Nop) Close() error                                 { return nil }

// caller is the part of dbus.BusObject used here
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Desktop sends notifications to the session's notification daemon. Each
// notification replaces the previous one so they do not pile up.
type Desktop struct {
	conn *dbus.Conn
	obj  caller

	mu        sync.Mutex
	replaceID uint32
}

// NewDesktop connects to the session bus and checks that a notification
// daemon is running.
func NewDesktop() (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var hasOwner bool
	if err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, notificationsService).Store(&hasOwner); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to query D-Bus names: %w", err)
	}
	if !hasOwner {
		conn.Close()
		return nil, fmt.Errorf("%s not found on D-Bus", notificationsService)
	}

	return &Desktop{
		conn: conn,
		obj:  conn.Object(notificationsService, dbus.ObjectPath(notificationsPath)),
	}, nil
}

// Notify shows summary and body, replacing any earlier notification
func (d *Desktop) Notify(ctx context.Context, summary, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}

	var id uint32
	call := d.obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		appName,
		d.replaceID,
		"",
		summary,
		body,
		[]string{},
		hints,
		expireDefault,
	)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	d.replaceID = id
	logger.WithComponent("notify").Debug().Uint32("id", id).Str("summary", summary).Msg("Notification sent")
	return nil
}

// Close disconnects from the session bus
func (d *Desktop) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
