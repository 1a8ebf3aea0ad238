package daemon

import (
	"fmt"

	sd "github.com/coreos/go-systemd/v22/daemon"
)

// notifyReady sends READY=1. Outside systemd it does nothing.
func notifyReady() error {
	if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// notifyStopping sends STOPPING=1.
func notifyStopping() error {
	if _, err := sd.SdNotify(false, sd.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// notifyStatus publishes a one-line status shown by systemctl status.
func notifyStatus(status string) {
	_, _ = sd.SdNotify(false, "STATUS="+status)
}
