package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL = errors.New("невалидный URL")
)

const defaultTTL = 24 * time.Hour

// LinkService интерфейс реестра ссылок
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	GetLink(ctx context.Context, code string) (*models.Link, error)
	ListLinks(ctx context.Context) ([]models.Link, error)
	DeleteLink(ctx context.Context, code string) error
	Resolve(ctx context.Context, code string) (string, error)
	Ping(ctx context.Context) error
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo     repository.LinkRepository
	cacheRepo    repository.CacheRepository
	allocator    *CodeAllocator
	clicks       ClickProcessor
	logger       *zap.Logger
	cacheTTL     time.Duration
	cacheEnabled bool // false, когда кэш не передан и используется noop
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	allocator *CodeAllocator,
	clicks ClickProcessor,
	logger *zap.Logger,
	cacheTTL time.Duration,
) LinkService {
	cacheEnabled := cacheRepo != nil
	if !cacheEnabled {
		cacheRepo = repository.NewNoopCacheRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultTTL
	}

	return &linkService{
		linkRepo:     linkRepo,
		cacheRepo:    cacheRepo,
		allocator:    allocator,
		clicks:       clicks,
		logger:       logger,
		cacheTTL:     cacheTTL,
		cacheEnabled: cacheEnabled,
	}
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	if err := ValidateURL(input.TargetURL); err != nil {
		return nil, err
	}

	if input.Code != nil && *input.Code != "" {
		code, err := s.allocator.Allocate(ctx, input.Code)
		if err != nil {
			return nil, err
		}
		// Проигранная гонка на INSERT отдаётся клиенту как ErrCodeExists
		return s.insert(ctx, code, input.TargetURL)
	}

	// Сгенерированный код, проигравший гонку, заменяется новым в пределах того же бюджета попыток
	remaining := s.allocator.MaxAttempts()
	for remaining > 0 {
		code, used, err := s.allocator.generate(ctx, remaining)
		if err != nil {
			return nil, err
		}
		remaining -= used

		link, err := s.insert(ctx, code, input.TargetURL)
		if errors.Is(err, repository.ErrCodeExists) {
			s.logger.Debug("Сгенерированный код занят при вставке", zap.String("code", code))
			continue
		}
		return link, err
	}

	return nil, ErrAllocationExhausted
}

func (s *linkService) insert(ctx context.Context, code, targetURL string) (*models.Link, error) {
	link := &models.Link{
		Code:      code,
		TargetURL: targetURL,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

// GetLink читает запись напрямую из хранилища, чтобы счётчик был актуальным
func (s *linkService) GetLink(ctx context.Context, code string) (*models.Link, error) {
	if ValidateCode(code) != nil {
		return nil, repository.ErrLinkNotFound
	}
	return s.linkRepo.GetByCode(ctx, code)
}

// ListLinks возвращает все ссылки, новые первыми
func (s *linkService) ListLinks(ctx context.Context) ([]models.Link, error) {
	return s.linkRepo.List(ctx)
}

// DeleteLink удаляет ссылку и сбрасывает её из кэша
func (s *linkService) DeleteLink(ctx context.Context, code string) error {
	if ValidateCode(code) != nil {
		return repository.ErrLinkNotFound
	}

	err := s.linkRepo.Delete(ctx, code)

	if cacheErr := s.cacheRepo.Delete(ctx, code); cacheErr != nil {
		s.logger.Warn("Не удалось удалить ссылку из кэша", zap.String("code", code), zap.Error(cacheErr))
	}

	return err
}

// Resolve находит целевой URL и ставит клик в очередь.
// Ошибка учёта клика не влияет на редирект.
func (s *linkService) Resolve(ctx context.Context, code string) (string, error) {
	link, err := s.lookup(ctx, code)
	if err != nil {
		return "", err
	}

	if err := s.clicks.RecordClick(ctx, code); err != nil {
		s.logger.Warn("Не удалось учесть клик", zap.String("code", code), zap.Error(err))
	}

	return link.TargetURL, nil
}

// Ping проверяет доступность хранилища
func (s *linkService) Ping(ctx context.Context) error {
	return s.linkRepo.Ping(ctx)
}

// lookup сначала смотрит в кэш, затем в БД
func (s *linkService) lookup(ctx context.Context, code string) (*models.Link, error) {
	if ValidateCode(code) != nil {
		return nil, repository.ErrLinkNotFound
	}

	link, err := s.cacheRepo.Get(ctx, code)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Debug("Кэш недоступен", zap.String("code", code), zap.Error(err))
	}

	link, err = s.linkRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if !s.cacheEnabled {
		return link, nil
	}

	if err := s.cacheRepo.Set(ctx, link, s.cacheTTL); err != nil {
		s.logger.Debug("Не удалось закэшировать ссылку", zap.String("code", code), zap.Error(err))
		return link, nil
	}

	// DeleteLink удаляет строку раньше ключа кэша. Если строки уже нет,
	// удаление прошло между чтением и Set, и запись в кэше устарела.
	exists, err := s.linkRepo.Exists(ctx, code)
	if err != nil {
		s.logger.Debug("Не удалось перепроверить ссылку после кэширования", zap.String("code", code), zap.Error(err))
		return link, nil
	}
	if !exists {
		if err := s.cacheRepo.Delete(ctx, code); err != nil {
			s.logger.Warn("Не удалось удалить ссылку из кэша", zap.String("code", code), zap.Error(err))
		}
		return nil, repository.ErrLinkNotFound
	}

	return link, nil
}

// ValidateURL принимает только абсолютные http/https URL с хостом
func ValidateURL(raw string) error {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
