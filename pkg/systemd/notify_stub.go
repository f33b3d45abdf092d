//go:build !linux

package systemd

func NotifyReady()    {}
func NotifyStopping() {}
