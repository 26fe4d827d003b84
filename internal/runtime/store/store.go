// Package store persists log records into three append-only tables. The
// services only ever insert and read; nothing here updates or deletes a row.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/drblury/logpipe/internal/runtime/records"
)

var (
	ErrDuplicateID = errors.New("store: record id already persisted")
	ErrNotFound    = errors.New("store: record not found")
	ErrWrongLevel  = errors.New("store: record level not accepted by this service")
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Persister is the insert contract the queue consumer depends on.
type Persister interface {
	Persist(ctx context.Context, rec records.Record) error
}

// Query narrows a List call. Zero values disable a filter.
type Query struct {
	Limit       int
	Offset      int
	Since       time.Time
	Until       time.Time
	ServiceName string
	// Level only applies to the shared Warning/Exception table.
	Level records.Level
}

func (q Query) apply(db *gorm.DB) *gorm.DB {
	if !q.Since.IsZero() {
		db = db.Where("created_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		db = db.Where("created_at < ?", q.Until)
	}
	if q.ServiceName != "" {
		db = db.Where("service_name = ?", q.ServiceName)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	db = db.Order("created_at ASC").Order("id ASC").Limit(limit)
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}

// Services bundles the three persistence services over one connection.
type Services struct {
	Info      *InfoService
	Attention *AttentionService
	Failed    *FailedService
}

// NewServices builds the three services on db.
func NewServices(db *gorm.DB) *Services {
	return &Services{
		Info:      NewInfoService(db),
		Attention: NewAttentionService(db),
		Failed:    NewFailedService(db),
	}
}

// For returns the service that stores records of the given level.
func (s *Services) For(level records.Level) (Persister, bool) {
	switch level {
	case records.LevelInfo:
		return s.Info, true
	case records.LevelWarning, records.LevelException:
		return s.Attention, true
	case records.LevelFailed:
		return s.Failed, true
	}
	return nil, false
}

// Persist routes rec to the service matching its level.
func (s *Services) Persist(ctx context.Context, rec records.Record) error {
	if rec == nil {
		return ErrWrongLevel
	}
	p, ok := s.For(rec.Level())
	if !ok {
		return fmt.Errorf("%w: %s", ErrWrongLevel, rec.Level())
	}
	return p.Persist(ctx, rec)
}

// InfoService writes Info records to the InfoLogs table.
type InfoService struct {
	db *gorm.DB
}

func NewInfoService(db *gorm.DB) *InfoService {
	return &InfoService{db: db}
}

// Insert validates rec and stores it as a new row.
func (s *InfoService) Insert(ctx context.Context, rec records.Info) error {
	if err := records.Validate(rec); err != nil {
		return err
	}
	row := InfoLog{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		ServiceName: rec.ServiceName,
		Request:     rec.Request,
		Response:    rec.Response,
	}
	return create(ctx, s.db, &row, rec.ID)
}

func (s *InfoService) Persist(ctx context.Context, rec records.Record) error {
	info, ok := rec.(records.Info)
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrWrongLevel, levelOf(rec), InfoTable)
	}
	return s.Insert(ctx, info)
}

func (s *InfoService) Get(ctx context.Context, id string) (records.Info, error) {
	var row InfoLog
	if err := first(ctx, s.db, &row, id); err != nil {
		return records.Info{}, err
	}
	return row.record(), nil
}

func (s *InfoService) List(ctx context.Context, q Query) ([]records.Info, error) {
	var rows []InfoLog
	if err := q.apply(s.db.WithContext(ctx)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list %s: %w", InfoTable, err)
	}
	out := make([]records.Info, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// AttentionService writes Warning and Exception records to the shared
// ExceptionAndWarningLogs table.
type AttentionService struct {
	db *gorm.DB
}

func NewAttentionService(db *gorm.DB) *AttentionService {
	return &AttentionService{db: db}
}

// Insert validates rec, which must be a Warning or an Exception, and stores
// it as a new row.
func (s *AttentionService) Insert(ctx context.Context, rec records.Record) error {
	var row AttentionLog
	switch r := rec.(type) {
	case records.Warning:
		row = AttentionLog{
			ID:          r.ID,
			CreatedAt:   r.CreatedAt,
			Level:       string(records.LevelWarning),
			ServiceName: r.ServiceName,
			Request:     r.Request,
			Message:     r.WarningMessage,
			Response:    r.Response,
		}
	case records.Exception:
		row = AttentionLog{
			ID:          r.ID,
			CreatedAt:   r.CreatedAt,
			Level:       string(records.LevelException),
			ServiceName: r.ServiceName,
			Request:     r.Request,
			Message:     r.ExceptionMessage,
			StackTrace:  r.StackTrace,
		}
	default:
		return fmt.Errorf("%w: %s on %s", ErrWrongLevel, levelOf(rec), AttentionTable)
	}
	if err := records.Validate(rec); err != nil {
		return err
	}
	return create(ctx, s.db, &row, row.ID)
}

func (s *AttentionService) Persist(ctx context.Context, rec records.Record) error {
	return s.Insert(ctx, rec)
}

// Get returns the Warning or Exception stored under id.
func (s *AttentionService) Get(ctx context.Context, id string) (records.Record, error) {
	var row AttentionLog
	if err := first(ctx, s.db, &row, id); err != nil {
		return nil, err
	}
	return row.record(), nil
}

func (s *AttentionService) List(ctx context.Context, q Query) ([]records.Record, error) {
	db := s.db.WithContext(ctx)
	if q.Level != "" {
		db = db.Where("level = ?", string(q.Level))
	}
	var rows []AttentionLog
	if err := q.apply(db).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list %s: %w", AttentionTable, err)
	}
	out := make([]records.Record, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// FailedService writes Failed records to the FailedLogs table. The failure
// sink also uses it for best-effort writes that bypass the broker.
type FailedService struct {
	db *gorm.DB
}

func NewFailedService(db *gorm.DB) *FailedService {
	return &FailedService{db: db}
}

func (s *FailedService) Insert(ctx context.Context, rec records.Failed) error {
	if err := records.Validate(rec); err != nil {
		return err
	}
	row := FailedLog{
		ID:              rec.ID,
		CreatedAt:       rec.CreatedAt,
		ServiceName:     rec.ServiceName,
		OriginalMessage: rec.OriginalMessage,
		FailedMessage:   rec.FailedMessage,
		StackTrace:      rec.StackTrace,
	}
	return create(ctx, s.db, &row, rec.ID)
}

func (s *FailedService) Persist(ctx context.Context, rec records.Record) error {
	switch r := rec.(type) {
	case records.Failed:
		return s.Insert(ctx, r)
	case records.Fallback:
		return s.Insert(ctx, r.Failed())
	}
	return fmt.Errorf("%w: %s on %s", ErrWrongLevel, levelOf(rec), FailedTable)
}

func (s *FailedService) Get(ctx context.Context, id string) (records.Failed, error) {
	var row FailedLog
	if err := first(ctx, s.db, &row, id); err != nil {
		return records.Failed{}, err
	}
	return row.record(), nil
}

func (s *FailedService) List(ctx context.Context, q Query) ([]records.Failed, error) {
	var rows []FailedLog
	if err := q.apply(s.db.WithContext(ctx)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list %s: %w", FailedTable, err)
	}
	out := make([]records.Failed, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

func create(ctx context.Context, db *gorm.DB, row any, id string) error {
	err := db.WithContext(ctx).Create(row).Error
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return fmt.Errorf("store: insert %s: %w", id, err)
}

func first(ctx context.Context, db *gorm.DB, row any, id string) error {
	err := db.WithContext(ctx).Where("id = ?", id).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("store: get %s: %w", id, err)
	}
	return nil
}

// isDuplicate recognises primary key collisions. Dialects that translate
// errors report gorm.ErrDuplicatedKey; the message checks cover driver
// versions that do not.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func levelOf(rec records.Record) string {
	if rec == nil {
		return "<nil>"
	}
	return string(rec.Level())
}

func (r InfoLog) record() records.Info {
	return records.Info{
		Meta:     records.Meta{ID: r.ID, CreatedAt: r.CreatedAt, ServiceName: r.ServiceName},
		Request:  r.Request,
		Response: r.Response,
	}
}

func (r AttentionLog) record() records.Record {
	meta := records.Meta{ID: r.ID, CreatedAt: r.CreatedAt, ServiceName: r.ServiceName}
	if r.Level == string(records.LevelException) {
		return records.Exception{Meta: meta, Request: r.Request, ExceptionMessage: r.Message, StackTrace: r.StackTrace}
	}
	return records.Warning{Meta: meta, Request: r.Request, WarningMessage: r.Message, Response: r.Response}
}

func (r FailedLog) record() records.Failed {
	return records.Failed{
		Meta:            records.Meta{ID: r.ID, CreatedAt: r.CreatedAt, ServiceName: r.ServiceName},
		OriginalMessage: r.OriginalMessage,
		FailedMessage:   r.FailedMessage,
		StackTrace:      r.StackTrace,
	}
}
