package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu    sync.RWMutex
	links map[string]*models.Link

	// Err, if set, is returned by every operation to simulate an unavailable store
	Err error
	// ExistsCalls counts Exists invocations
	ExistsCalls int
	// TakenCodes are reported as existing by Exists without being stored
	TakenCodes map[string]bool
	// AllTaken makes Exists report every code as taken
	AllTaken bool
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:      make(map[string]*models.Link),
		TakenCodes: make(map[string]bool),
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, exists := m.links[link.Code]; exists {
		return repository.ErrCodeExists
	}

	link.Clicks = 0
	link.LastClicked = nil
	stored := *link
	m.links[link.Code] = &stored
	return nil
}

func (m *MockLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return copyLink(link), nil
}

func (m *MockLinkRepository) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExistsCalls++
	if m.Err != nil {
		return false, m.Err
	}
	if m.AllTaken || m.TakenCodes[code] {
		return true, nil
	}
	_, exists := m.links[code]
	return exists, nil
}

func (m *MockLinkRepository) List(ctx context.Context) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	links := make([]models.Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, *copyLink(link))
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].Code > links[j].Code
		}
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, exists := m.links[code]; !exists {
		return repository.ErrLinkNotFound
	}
	delete(m.links, code)
	return nil
}

func (m *MockLinkRepository) RecordClick(ctx context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	now := time.Now().UTC()
	link.Clicks++
	link.LastClicked = &now
	return copyLink(link), nil
}

func (m *MockLinkRepository) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// SetErr switches the simulated failure on or off
func (m *MockLinkRepository) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.TakenCodes = make(map[string]bool)
	m.ExistsCalls = 0
	m.AllTaken = false
	m.Err = nil
}

func copyLink(link *models.Link) *models.Link {
	c := *link
	if link.LastClicked != nil {
		t := *link.LastClicked
		c.LastClicked = &t
	}
	return &c
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*models.Link
	// Err, if set, is returned by every operation
	Err error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*models.Link),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	link, exists := m.cache[code]
	if !exists {
		return nil, repository.ErrCacheMiss
	}
	return copyLink(link), nil
}

func (m *MockCacheRepository) Set(ctx context.Context, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.cache[link.Code] = copyLink(link)
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.cache, code)
	return nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*models.Link)
	m.Err = nil
}

// MockClickProcessor records clicks synchronously against the repository
type MockClickProcessor struct {
	mu    sync.Mutex
	Repo  repository.LinkRepository
	Codes []string
	Err   error
}

func NewMockClickProcessor(repo repository.LinkRepository) *MockClickProcessor {
	return &MockClickProcessor{Repo: repo}
}

func (m *MockClickProcessor) Start() {}

func (m *MockClickProcessor) Stop() {}

func (m *MockClickProcessor) RecordClick(ctx context.Context, code string) error {
	m.mu.Lock()
	m.Codes = append(m.Codes, code)
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if m.Repo == nil {
		return nil
	}
	_, err = m.Repo.RecordClick(ctx, code)
	return err
}

func (m *MockClickProcessor) Stats() service.ChannelStats {
	return service.ChannelStats{}
}
