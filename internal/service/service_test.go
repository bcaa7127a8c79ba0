package service

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/entities"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// transactions must see the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.ReceivedSendable{},
		&model.RecipientSendableAssociation{},
		&model.Message{},
		&model.Notice{},
	))
	return db
}

func testRegistry(t *testing.T, v *viper.Viper) *registry.Registry {
	if v == nil {
		v = viper.New()
	}
	reg := registry.New(v)
	require.NoError(t, entities.RegisterBuiltin(reg))
	return reg
}

func entityConfig(t *testing.T, reg *registry.Registry, name string) *registry.Config {
	cfg, ok := reg.Lookup(name)
	require.True(t, ok)
	return cfg
}

func seedUser(t *testing.T, db *gorm.DB, username string) model.User {
	user := model.User{Username: username, Email: username + "@example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func noCache() *UnreadCache { return NewUnreadCache(nil, 0) }

// sendMessage delivers one message and returns its content record id.
func sendMessage(t *testing.T, db *gorm.DB, cfg *registry.Config, senderID uint, content string, recipients ...uint) uint {
	t.Helper()
	_, err := NewSendService(db, noCache()).Send(context.Background(), cfg, senderID,
		map[string]any{"content": content}, recipients)
	require.NoError(t, err)
	var msg model.Message
	require.NoError(t, db.Order("id desc").First(&msg).Error)
	return msg.ID
}

// inboxRefs returns the recipient's inbox copies of the entity type.
func inboxRefs(t *testing.T, db *gorm.DB, entity string, recipientID uint) []model.ReceivedSendable {
	t.Helper()
	var refs []model.ReceivedSendable
	require.NoError(t, db.
		Where("entity_type = ? AND recipient_id = ?", entity, recipientID).
		Order("id").Find(&refs).Error)
	return refs
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table(table).Count(&count).Error)
	return count
}
