package store

import (
	"encoding/json"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record names for the three application snapshots.
const (
	RecordContacts    = "contacts"
	RecordCredentials = "credentials"
	RecordTemplates   = "templates"
)

// Record is one named JSON snapshot of in-memory state.
type Record struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Record) TableName() string {
	return "records"
}

// DB is the durable key/value snapshot store. Each named record is
// written whole on every state change and read once at startup.
type DB struct {
	g *gorm.DB
}

// Open connects to postgres when dsn is set, otherwise to the sqlite
// file at path, and migrates the records table.
func Open(path, dsn string) (*DB, error) {
	var dialector gorm.Dialector
	if dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(path)
	}

	g, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := g.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &DB{g: g}, nil
}

// Put serializes v and upserts it under name.
func (d *DB) Put(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rec := Record{Name: name, Value: string(data)}
	return d.g.Save(&rec).Error
}

// Delete removes a named record. Missing records are not an error.
func (d *DB) Delete(name string) error {
	return d.g.Delete(&Record{}, "name = ?", name).Error
}

// Get loads a named record into out. Missing or corrupt records fail
// soft: the error is logged and false is returned so callers fall back
// to empty state.
func (d *DB) Get(name string, out interface{}) bool {
	var rec Record
	if err := d.g.First(&rec, "name = ?", name).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Printf("store: reading record %q: %v", name, err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(rec.Value), out); err != nil {
		log.Printf("store: record %q is corrupt, falling back to empty state: %v", name, err)
		return false
	}
	return true
}
