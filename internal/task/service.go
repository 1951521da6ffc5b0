package task

import (
	"context"
	"log/slog"
	"time"

	xerrors "tasks-api/internal/errors"
	"tasks-api/internal/requestid"
	"tasks-api/pkg/logger"
)

// Service 负责输入校验，并把每个请求转换成一次存储操作。
type Service struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithPublisher 设置任务事件发布器。
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger 替换默认的组件日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService 构造任务服务。
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: NopPublisher{},
		log:       logger.Named("task"),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create 校验标题并创建任务。
func (s *Service) Create(ctx context.Context, title string) (*Task, error) {
	title, err := NormalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, title)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventCreated, *created)
	return created, nil
}

// List 返回全部任务，按 ID 升序。
func (s *Service) List(ctx context.Context) ([]Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Update 覆盖任务的标题与完成状态。标题与创建时一样不能为空。
func (s *Service) Update(ctx context.Context, id int64, title string, completed bool) (*Task, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	title, err := NormalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, Task{ID: id, Title: title, Completed: completed})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventUpdated, *updated)
	return updated, nil
}

// Delete 永久删除任务。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, EventDeleted, Task{ID: id})
	return nil
}

// Ping 在存储支持时检查其可用性。
func (s *Service) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if pinger, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close 释放存储与发布器。
func (s *Service) Close() error {
	var err error
	if s.publisher != nil {
		err = s.publisher.Close()
	}
	if s.store != nil {
		if closeErr := s.store.Close(); closeErr != nil {
			return closeErr
		}
	}
	return err
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return nil
}

// emit 写审计日志并发布事件。写入已经提交，发布失败只记录日志。
func (s *Service) emit(ctx context.Context, typ EventType, t Task) {
	reqID := requestid.FromContext(ctx)
	logger.Audit().InfoContext(ctx, string(typ),
		slog.Int64("task_id", t.ID),
		slog.Bool("completed", t.Completed),
		slog.String("request_id", reqID),
	)
	event := Event{Type: typ, Task: t, RequestID: reqID, OccurredAt: s.now().UTC()}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WarnContext(ctx, "任务事件发布失败",
			slog.String("type", string(typ)),
			slog.Int64("task_id", t.ID),
			slog.String("request_id", reqID),
			slog.Any("error", err),
		)
	}
}
