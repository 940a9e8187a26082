package service

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"gopkg.in/natefinch/lumberjack.v2"
)

type AuditService struct {
	logChan chan *model.AuditLog
	out     io.WriteCloser
	buffer  *auditBuffer
	repo    AuditRepo
	done    chan struct{}
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error)
}

// NewAuditService writes the trail as JSON lines under logDir, rotated by
// size and kept for a bounded number of days. repo may be nil.
func NewAuditService(logDir string, retentionDays int, repo AuditRepo) *AuditService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	out := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "audit.jsonl"),
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     retentionDays,
		Compress:   true,
	}
	return newAuditService(out, repo)
}

func newAuditService(out io.WriteCloser, repo AuditRepo) *AuditService {
	svc := &AuditService{
		logChan: make(chan *model.AuditLog, 1000), // 缓冲区 1000
		out:     out,
		buffer:  newAuditBuffer(1000),
		repo:    repo,
		done:    make(chan struct{}),
	}

	// 启动消费者 goroutine
	go svc.processLogs()

	return svc
}

func (s *AuditService) Log(entry *model.AuditLog) {
	if s.buffer != nil {
		s.buffer.Add(entry)
	}
	select {
	case s.logChan <- entry:
	default:
		// 缓冲区满，丢弃日志以保护主流程
		logger.Warn("audit log buffer full, dropping entry", "request_id", entry.ID)
	}
}

func (s *AuditService) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, q)
		if err == nil {
			return records, nil
		}
		logger.Warn("audit repo list failed, serving from memory", "error", err)
	}
	if s.buffer == nil {
		return nil, nil
	}
	return s.buffer.List(q), nil
}

func (s *AuditService) processLogs() {
	defer close(s.done)
	encoder := json.NewEncoder(s.out)
	for entry := range s.logChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), entry); err != nil {
				logger.Error("write audit log to repo failed", "request_id", entry.ID, "error", err)
			}
		}
		if err := encoder.Encode(entry); err != nil {
			logger.Error("write audit log failed", "request_id", entry.ID, "error", err)
		}
	}
}

// Close drains pending entries and closes the file.
func (s *AuditService) Close() {
	close(s.logChan)
	<-s.done
	_ = s.out.Close()
}

type auditBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.AuditLog
	nextIndex int
}

func newAuditBuffer(maxSize int) *auditBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &auditBuffer{
		maxSize: maxSize,
		records: make([]*model.AuditLog, 0, maxSize),
	}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns newest first.
func (b *auditBuffer) List(q model.AuditQuery) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := q.Limit
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.AuditLog, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if !q.Matches(entry) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
