//go:build linux

// Package systemd reports service readiness to the init system when the
// process runs as a Type=notify unit. Outside systemd these calls are no-ops.
package systemd

import "github.com/coreos/go-systemd/v22/daemon"

func NotifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
