// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/thegame/models"
)

// Database 游戏历史存储接口
type Database interface {
	SaveGameRecord(ctx context.Context, record *models.GameRecord) error
	RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	Close() error
}

// 错误定义
var (
	ErrInvalidRecord = errors.New("invalid game record")
)

func validate(record *models.GameRecord) error {
	if record == nil || record.RoomName == "" {
		return ErrInvalidRecord
	}
	return nil
}
