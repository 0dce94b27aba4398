package database

import (
	"context"
	"fmt"

	"civicreport/models"

	"github.com/apex/log"
)

// CreateNotificationLogTable creates the notification_log table if it doesn't exist
func (d *Database) CreateNotificationLogTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS notification_log (
		seq INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		event_kind VARCHAR(32) NOT NULL,
		report_id VARCHAR(36) NOT NULL,
		recipient VARCHAR(255) NOT NULL,
		sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_notification_log_report (report_id),
		INDEX idx_notification_log_recipient (recipient)
	)`

	_, err := d.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create notification_log table: %w", err)
	}

	log.Info("notification_log table created/verified successfully")
	return nil
}

// LogNotification records one successful notification delivery.
func (d *Database) LogNotification(ctx context.Context, event models.EventKind, reportID, recipient string) error {
	_, err := d.db.ExecContext(ctx, `INSERT
	  INTO notification_log (event_kind, report_id, recipient)
	  VALUES (?, ?, ?)`,
		string(event), reportID, recipient)
	if err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}
