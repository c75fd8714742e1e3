package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type widget struct {
	ID string `gorm:"primaryKey;type:text"`
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(errors.New("constraint failed: UNIQUE constraint failed: widgets.id (1555)")))
	assert.False(t, IsDuplicateKeyErr(errors.New("database is locked")))
}

func TestOpen_DetectsDuplicateInsert(t *testing.T) {
	conn, err := Open(Config{DSN: "file:db_test?mode=memory&cache=shared"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(conn) })

	require.NoError(t, conn.AutoMigrate(&widget{}))
	require.NoError(t, conn.Create(&widget{ID: "a"}).Error)

	err = conn.Create(&widget{ID: "a"}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))
}
