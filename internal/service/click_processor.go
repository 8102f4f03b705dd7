package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/link-registry/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	defaultMaxRetries    = 3    // Максимальное количество попыток записи
	defaultClickTimeout  = 5 * time.Second
)

// ClickProcessor учитывает клики вне пути запроса редиректа
type ClickProcessor interface {
	Start()
	Stop()
	RecordClick(ctx context.Context, code string) error
	Stats() ChannelStats
}

type ClickProcessorConfig struct {
	Workers    int
	Buffer     int
	MaxRetries int
	Timeout    time.Duration
	// Backoff базовая пауза между попытками, растёт линейно
	Backoff time.Duration
	// Overflow сколько кликов может писаться в фоне сверх буфера; по умолчанию равно Workers
	Overflow int
}

// clickProcessor реализация процессора кликов с использованием Worker Pool
type clickProcessor struct {
	linkRepo     repository.LinkRepository
	cacheRepo    repository.CacheRepository
	logger       *zap.Logger
	clickChannel chan string // Канал кодов, по которым был переход
	workerCount  int
	maxRetries   int
	timeout      time.Duration
	backoff      time.Duration
	overflow     chan struct{} // Семафор фоновых записей при заполненном буфере
	dropped      atomic.Int64
	wg           sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewClickProcessor создаёт новый экземпляр процессора кликов
func NewClickProcessor(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	logger *zap.Logger,
	cfg ClickProcessorConfig,
) ClickProcessor {
	if cacheRepo == nil {
		cacheRepo = repository.NewNoopCacheRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = defaultChannelBuffer
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClickTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.Overflow <= 0 {
		cfg.Overflow = cfg.Workers
	}

	return &clickProcessor{
		linkRepo:     linkRepo,
		cacheRepo:    cacheRepo,
		logger:       logger,
		clickChannel: make(chan string, cfg.Buffer),
		workerCount:  cfg.Workers,
		maxRetries:   cfg.MaxRetries,
		timeout:      cfg.Timeout,
		backoff:      cfg.Backoff,
		overflow:     make(chan struct{}, cfg.Overflow),
	}
}

// Start запускает worker pool
func (p *clickProcessor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("Запуск воркеров процессора кликов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop прекращает приём, дожидается обработки буфера и завершения воркеров
func (p *clickProcessor) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.clickChannel)
	started := p.started
	p.mu.Unlock()

	p.logger.Info("Остановка процессора кликов...")
	if !started {
		// Воркеров не было: дорабатываем буфер сами
		for code := range p.clickChannel {
			p.processClick(code)
		}
	}
	p.wg.Wait()
	p.logger.Info("Процессор кликов остановлен")
}

// worker обрабатывает события кликов из канала до его закрытия
func (p *clickProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер кликов запущен", zap.Int("id", id))

	for code := range p.clickChannel {
		p.processClick(code)
	}

	p.logger.Debug("Воркер кликов остановлен", zap.Int("id", id))
}

// processClick атомарно увеличивает счётчик с retry логикой
func (p *clickProcessor) processClick(code string) {
	var err error
	for i := 0; i < p.maxRetries; i++ {
		err = p.recordOnce(code)
		if err == nil {
			return
		}

		if errors.Is(err, repository.ErrLinkNotFound) {
			// Удаление выиграло гонку у редиректа; убираем возможную устаревшую запись из кэша
			p.invalidate(code)
			p.logger.Debug("Клик по удалённой ссылке", zap.String("code", code))
			return
		}

		if i < p.maxRetries-1 {
			p.logger.Debug("Повторная попытка записи клика",
				zap.String("code", code),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * p.backoff)
		}
	}

	p.logger.Error("Не удалось записать клик после всех попыток",
		zap.String("code", code),
		zap.Error(err),
	)
}

func (p *clickProcessor) recordOnce(code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	_, err := p.linkRepo.RecordClick(ctx, code)
	return err
}

func (p *clickProcessor) invalidate(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.cacheRepo.Delete(ctx, code); err != nil {
		p.logger.Debug("Не удалось удалить ссылку из кэша", zap.String("code", code), zap.Error(err))
	}
}

// RecordClick ставит клик в очередь и никогда не ждёт хранилище.
// При заполненном буфере клик пишется в фоновой горутине, число которых
// ограничено семафором; если занят и он, клик отбрасывается и учитывается в Stats.
func (p *clickProcessor) RecordClick(_ context.Context, code string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.drop(code, "процессор остановлен")
		return nil
	}

	select {
	case p.clickChannel <- code:
		return nil
	default:
	}

	select {
	case p.overflow <- struct{}{}:
		// Add под RLock: Stop не начнёт Wait, пока не возьмёт Lock
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.overflow }()
			p.processClick(code)
		}()
	default:
		p.drop(code, "буфер и фоновые записи заняты")
	}
	return nil
}

func (p *clickProcessor) drop(code, reason string) {
	p.dropped.Add(1)
	p.logger.Warn("Клик отброшен", zap.String("code", code), zap.String("reason", reason))
}

// Stats возвращает статистику канала для мониторинга
func (p *clickProcessor) Stats() ChannelStats {
	return ChannelStats{
		BufferSize:  cap(p.clickChannel),
		BufferUsed:  len(p.clickChannel),
		WorkerCount: p.workerCount,
		Overflow:    len(p.overflow),
		Dropped:     p.dropped.Load(),
	}
}

// ChannelStats статистика канала worker pool
type ChannelStats struct {
	BufferSize  int   `json:"buffer_size"`  // Общая ёмкость канала
	BufferUsed  int   `json:"buffer_used"`  // Текущее использование
	WorkerCount int   `json:"worker_count"` // Количество воркеров
	Overflow    int   `json:"overflow"`     // Фоновые записи сверх буфера
	Dropped     int64 `json:"dropped"`      // Отброшенные клики с момента старта
}
