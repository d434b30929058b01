package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"schoolhub_go/database"
	"schoolhub_go/models"
	"schoolhub_go/storage"

	"github.com/sirupsen/logrus"
)

// AuditArchiveService exports old audit rows to S3 and prunes them from the
// database, keeping an AuditArchive metadata row per export.
type AuditArchiveService struct {
	store *storage.ArchiveStore
}

// ArchivedAudit is the exported representation stored inside archives.
type ArchivedAudit struct {
	ID        uint           `json:"id"`
	UserID    uint           `json:"user_id"`
	Action    string         `json:"action"`
	TableName string         `json:"table_name"`
	RecordID  uint           `json:"record_id"`
	OldValue  map[string]any `json:"old_value,omitempty"`
	NewValue  map[string]any `json:"new_value,omitempty"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
	Username  string         `json:"username,omitempty"`
	UserRole  string         `json:"user_role,omitempty"`
}

// NewAuditArchiveService creates a new service instance.
func NewAuditArchiveService() *AuditArchiveService {
	store, err := storage.NewArchiveStore()
	if err != nil {
		logrus.WithError(err).Warn("Failed to init archive store; S3 operations will fail until configured")
	}
	return &AuditArchiveService{store: store}
}

// ArchiveOldAudits archives audit rows older than daysOld to S3 and removes
// them from the database.
func (as *AuditArchiveService) ArchiveOldAudits(daysOld int) error {
	if daysOld < 7 {
		return fmt.Errorf("minimum archive age is 7 days for safety")
	}
	if as.store == nil {
		return fmt.Errorf("archive store not configured")
	}

	cutoffDate := time.Now().AddDate(0, 0, -daysOld)

	batchSize := 1000
	var all []ArchivedAudit

	for offset := 0; ; offset += batchSize {
		var entries []models.AuditLog
		err := database.DB.
			Preload("User").
			Where("created_at < ?", cutoffDate).
			Limit(batchSize).
			Offset(offset).
			Find(&entries).Error
		if err != nil {
			return fmt.Errorf("failed to fetch audit entries for archiving: %v", err)
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			archived := ArchivedAudit{
				ID:        entry.ID,
				UserID:    entry.UserID,
				Action:    entry.Action,
				TableName: entry.TableName,
				RecordID:  entry.RecordID,
				IPAddress: entry.IPAddress,
				UserAgent: entry.UserAgent,
				CreatedAt: entry.CreatedAt,
			}
			if !entry.OldValue.IsNull() {
				json.Unmarshal(entry.OldValue, &archived.OldValue)
			}
			if !entry.NewValue.IsNull() {
				json.Unmarshal(entry.NewValue, &archived.NewValue)
			}
			if entry.User.ID > 0 {
				archived.Username = entry.User.Username
				archived.UserRole = entry.User.Role
			}
			all = append(all, archived)
		}
	}

	if len(all) == 0 {
		logrus.Info("No audit entries to archive")
		return nil
	}
	logrus.Infof("Archiving %d audit entries older than %s", len(all), cutoffDate.Format("2006-01-02"))

	fileName := fmt.Sprintf("audit_logs_%s.zip", cutoffDate.Format("2006-01-02"))
	buf, err := as.createZipArchive(all, fileName)
	if err != nil {
		return fmt.Errorf("failed to create ZIP archive: %v", err)
	}

	s3Key := fmt.Sprintf("audit/archived/%d/%02d/%s", cutoffDate.Year(), cutoffDate.Month(), fileName)
	if err := as.store.Put(context.Background(), s3Key, buf); err != nil {
		return fmt.Errorf("failed to upload archive to S3: %v", err)
	}
	logrus.Infof("Successfully uploaded archive to S3: %s", s3Key)

	result := database.DB.Unscoped().Where("created_at < ?", cutoffDate).Delete(&models.AuditLog{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete archived audit entries: %v", result.Error)
	}
	logrus.Infof("Deleted %d archived audit entries from database", result.RowsAffected)

	metadata := models.AuditArchive{
		FileName:    fileName,
		S3Key:       s3Key,
		StartDate:   all[0].CreatedAt,
		EndDate:     cutoffDate,
		RecordCount: len(all),
		FileSize:    int64(buf.Len()),
		Status:      "completed",
	}
	if err := database.DB.Create(&metadata).Error; err != nil {
		logrus.WithError(err).Error("Failed to save archive metadata")
	}

	return nil
}

// createZipArchive packs the entries as JSON plus a metadata file.
func (as *AuditArchiveService) createZipArchive(entries []ArchivedAudit, fileName string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	auditFile, err := zipWriter.Create("audit_logs.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create audit file in ZIP: %v", err)
	}
	encoder := json.NewEncoder(auditFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(map[string]any{
		"export_date":    time.Now().UTC(),
		"record_count":   len(entries),
		"format_version": "1.0",
		"audit_logs":     entries,
	}); err != nil {
		return nil, fmt.Errorf("failed to encode audit entries to JSON: %v", err)
	}

	metadataFile, err := zipWriter.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata file in ZIP: %v", err)
	}
	metadata := map[string]any{
		"file_name":    fileName,
		"created_at":   time.Now().UTC(),
		"record_count": len(entries),
		"date_range": map[string]any{
			"start": entries[0].CreatedAt,
			"end":   entries[len(entries)-1].CreatedAt,
		},
		"schema_version": "1.0",
		"description":    "SchoolHub Audit Log Archive",
	}
	if err := json.NewEncoder(metadataFile).Encode(metadata); err != nil {
		return nil, fmt.Errorf("failed to encode metadata to JSON: %v", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP archive: %v", err)
	}
	return buf, nil
}
