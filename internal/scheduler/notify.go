package scheduler

import "github.com/gen2brain/beeep"

// SendNotification shows a desktop notification.
func SendNotification(title, message string) error {
	beeep.AppName = "deskcheck"
	return beeep.Notify(title, message, "")
}
