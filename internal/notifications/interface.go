package notifications

import "github.com/azure/reddit-brand-monitor/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendDigest(digest *models.Digest) error
	SendAlert(alert *models.Alert) error
}
