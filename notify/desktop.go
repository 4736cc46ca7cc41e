package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"pomodoro"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify = "org.freedesktop.Notifications.Notify"

	desktopCallTimeout = 2 * time.Second
)

// caller is the part of dbus.BusObject Desktop needs.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Desktop shows notifications through the freedesktop notification service on
// the session bus.
type Desktop struct {
	AppName string
	obj     caller
	conn    *dbus.Conn
}

// NewDesktop connects to the session bus.
func NewDesktop(appName string) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{
		AppName: appName,
		obj:     conn.Object(notificationsDest, notificationsPath),
		conn:    conn,
	}, nil
}

func (d *Desktop) Notify(ctx context.Context, n pomodoro.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, desktopCallTimeout)
	defer cancel()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}
	if n.SoundEnabled {
		hints["sound-name"] = dbus.MakeVariant("complete")
	} else {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}

	call := d.obj.CallWithContext(ctx, notificationsNotify, 0,
		d.AppName,  // app_name
		uint32(0),  // replaces_id
		"",         // app_icon
		n.Title,    // summary
		n.Message,  // body
		[]string{}, // actions
		hints,
		int32(-1), // expire_timeout: server default
	)
	if call.Err != nil {
		return fmt.Errorf("desktop notify: %w", call.Err)
	}
	return nil
}

// Close releases the bus connection.
func (d *Desktop) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
