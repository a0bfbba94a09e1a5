package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/task-manage/internal/job/storage"
	"github.com/google/uuid"
)

func DecodeRecordCursor(cursorStr string) (*storage.RecordCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createTime int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &createTime)
	if err != nil {
		return nil, fmt.Errorf("invalid create_time in cursor: %w", err)
	}

	if _, err := uuid.Parse(decodedParts[1]); err != nil {
		return nil, fmt.Errorf("invalid record id in cursor: %w", err)
	}

	return &storage.RecordCursor{
		CreateTime: time.Unix(0, createTime).UTC(),
		ID:         decodedParts[1],
	}, nil
}

func EncodeRecordCursor(cursor *storage.RecordCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreateTime.UnixNano(), cursor.ID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
