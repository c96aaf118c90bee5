package dbstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sre-norns/vellum/pkg/preview"
)

const (
	encodingNone = ""
	encodingZstd = "zstd"
)

var ErrNoSessionID = fmt.Errorf("session id is empty")

type Pagination struct {
	Offset uint `uri:"offset" form:"offset" json:"offset" yaml:"offset"`
	Limit  uint `uri:"limit" form:"limit" json:"limit" yaml:"limit"`
}

func (p *Pagination) ClampLimit(maxLimit uint) {
	if p.Limit > maxLimit || p.Limit == 0 {
		p.Limit = maxLimit
	}
}

// Preview is a stored rendering of one request of a session.
type Preview struct {
	ID        uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`

	SessionID   string `gorm:"uniqueIndex:idx_session_request;not null" json:"sessionID" yaml:"sessionID"`
	RequestID   int    `gorm:"uniqueIndex:idx_session_request" json:"requestID" yaml:"requestID"`
	PrintTicket string `json:"printTicket" yaml:"printTicket"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	PageCount   int    `json:"pageCount" yaml:"pageCount"`
	TaskID      string `json:"taskID,omitempty" yaml:"taskID,omitempty"`
	Size        int    `json:"size" yaml:"size"`

	Encoding string `json:"-" yaml:"-"`
	Data     []byte `json:"-" yaml:"-"`
}

func (p Preview) Response() preview.Response {
	return preview.Response{
		RequestID:   p.RequestID,
		PrintTicket: p.PrintTicket,
		PageCount:   p.PageCount,
		ContentType: p.ContentType,
		Data:        p.Data,
		TaskID:      p.TaskID,
	}
}

type DbStore struct {
	db *gorm.DB

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewDbStore(db *gorm.DB) (*DbStore, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &DbStore{
		db:      db,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (s *DbStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Preview{})
}

func (s *DbStore) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

// Save stores a rendered preview. Saving the same request of a session again replaces it.
func (s *DbStore) Save(ctx context.Context, sessionID string, res preview.Response) (*Preview, error) {
	if sessionID == "" {
		return nil, ErrNoSessionID
	}

	value := &Preview{
		SessionID:   sessionID,
		RequestID:   res.RequestID,
		PrintTicket: res.PrintTicket,
		ContentType: res.ContentType,
		PageCount:   res.PageCount,
		TaskID:      res.TaskID,
		Size:        len(res.Data),
		Encoding:    encodingNone,
		Data:        res.Data,
	}
	if len(res.Data) > 0 {
		value.Encoding = encodingZstd
		value.Data = s.encoder.EncodeAll(res.Data, nil)
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "request_id"}},
		UpdateAll: true,
	}).Create(value)
	if tx.Error != nil {
		return nil, tx.Error
	}

	return value, nil
}

func (s *DbStore) decode(value *Preview) error {
	if value.Encoding != encodingZstd {
		return nil
	}

	data, err := s.decoder.DecodeAll(value.Data, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress preview %s/%d: %w", value.SessionID, value.RequestID, err)
	}
	value.Data = data
	value.Encoding = encodingNone
	return nil
}

func (s *DbStore) Get(ctx context.Context, sessionID string, requestID int) (Preview, bool, error) {
	var result Preview
	tx := s.db.WithContext(ctx).Where("session_id = ? AND request_id = ?", sessionID, requestID).First(&result)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return result, false, nil
	}
	if tx.Error != nil {
		return result, false, tx.Error
	}

	return result, true, s.decode(&result)
}

// Latest returns the stored preview with the highest request ID of a session.
func (s *DbStore) Latest(ctx context.Context, sessionID string) (Preview, bool, error) {
	var result Preview
	tx := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("request_id desc").First(&result)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return result, false, nil
	}
	if tx.Error != nil {
		return result, false, tx.Error
	}

	return result, true, s.decode(&result)
}

// List returns metadata of stored previews of a session ordered by request ID, without their content.
func (s *DbStore) List(ctx context.Context, sessionID string, pagination Pagination, maxLimit uint) ([]Preview, error) {
	pagination.ClampLimit(maxLimit)

	var result []Preview
	tx := s.db.WithContext(ctx).
		Omit("data").
		Where("session_id = ?", sessionID).
		Order("request_id").
		Offset(int(pagination.Offset)).
		Limit(int(pagination.Limit)).
		Find(&result)

	return result, tx.Error
}

// DeleteSession removes all previews stored for a session and reports how many were removed.
func (s *DbStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tx := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Preview{})
	return tx.RowsAffected, tx.Error
}
