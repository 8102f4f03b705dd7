package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/SergeiKhy/link-registry/internal/service"
	"github.com/SergeiKhy/link-registry/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// sequenceSource детерминированный источник индексов для тестов
type sequenceSource struct {
	values []int
	pos    int
}

func (s *sequenceSource) Intn(n int) (int, error) {
	v := s.values[s.pos%len(s.values)] % n
	s.pos++
	return v, nil
}

type failingSource struct{}

func (failingSource) Intn(int) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func strPtr(s string) *string {
	return &s
}

// TestAllocator_RequestedCode проверяет принятие валидного кастомного кода
func TestAllocator_RequestedCode(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{})

	for _, code := range []string{"a", "ab", "Z9", "abcdefghijkl", "ABC123xyz"} {
		got, err := allocator.Allocate(context.Background(), strPtr(code))
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}
}

// TestAllocator_InvalidRequestedCode проверяет отклонение невалидных кодов
func TestAllocator_InvalidRequestedCode(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{})

	invalidCodes := []string{"abcdefghijklm", "my-code", "my_code", "with space", "ünïcode", "a/b", "ab.c"}

	for _, code := range invalidCodes {
		_, err := allocator.Allocate(context.Background(), strPtr(code))
		assert.ErrorIs(t, err, service.ErrInvalidCode, "код должен быть отклонён: %q", code)
	}
	assert.Zero(t, repo.ExistsCalls, "невалидный код не должен доходить до хранилища")
}

// TestAllocator_RequestedCodeTaken проверяет конфликт занятого кода
func TestAllocator_RequestedCodeTaken(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	repo.TakenCodes["taken"] = true
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{})

	_, err := allocator.Allocate(context.Background(), strPtr("taken"))
	assert.ErrorIs(t, err, repository.ErrCodeExists)
}

// TestAllocator_GeneratedCodeFormat проверяет длину и алфавит сгенерированного кода
func TestAllocator_GeneratedCodeFormat(t *testing.T) {
	repo := mocks.NewMockLinkRepository()

	for _, length := range []int{1, 6, 12} {
		allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{CodeLength: length})
		code, err := allocator.Allocate(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, code, length)
		assert.NoError(t, service.ValidateCode(code))
	}

	// Пустая строка равнозначна отсутствию кода
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{})
	code, err := allocator.Allocate(context.Background(), strPtr(""))
	require.NoError(t, err)
	assert.Len(t, code, service.DefaultCodeLength)
}

// TestAllocator_DeterministicSource проверяет отображение индексов в алфавит
func TestAllocator_DeterministicSource(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{
		CodeLength: 4,
		Source:     &sequenceSource{values: []int{0, 25, 26, 61}},
	})

	code, err := allocator.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "AZa9", code)
}

// TestAllocator_RetryOnCollision проверяет повтор при коллизии
func TestAllocator_RetryOnCollision(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	repo.TakenCodes["AAA"] = true
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{
		CodeLength: 3,
		Source:     &sequenceSource{values: []int{0, 0, 0, 1, 1, 1}},
	})

	code, err := allocator.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "BBB", code)
	assert.Equal(t, 2, repo.ExistsCalls)
}

// TestAllocator_Exhausted проверяет ровно MaxAttempts попыток при заполненном пространстве
func TestAllocator_Exhausted(t *testing.T) {
	for _, attempts := range []int{1, 3, service.DefaultMaxAttempts} {
		repo := mocks.NewMockLinkRepository()
		repo.AllTaken = true

		cfg := service.AllocatorConfig{}
		if attempts != service.DefaultMaxAttempts {
			cfg.MaxAttempts = attempts
		}
		allocator := service.NewCodeAllocator(repo, cfg)

		_, err := allocator.Allocate(context.Background(), nil)
		assert.ErrorIs(t, err, service.ErrAllocationExhausted)
		assert.Equal(t, attempts, repo.ExistsCalls)
	}
}

// TestAllocator_StorageError проверяет, что ошибка хранилища не считается свободным кодом
func TestAllocator_StorageError(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	repo.Err = repository.ErrStorageUnavailable
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{})

	_, err := allocator.Allocate(context.Background(), nil)
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	assert.Equal(t, 1, repo.ExistsCalls)

	_, err = allocator.Allocate(context.Background(), strPtr("custom"))
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
}

// TestAllocator_SourceError проверяет ошибку источника случайности
func TestAllocator_SourceError(t *testing.T) {
	repo := mocks.NewMockLinkRepository()
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{Source: failingSource{}})

	_, err := allocator.Allocate(context.Background(), nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrAllocationExhausted)
}

// TestRandSources_CoverAlphabet проверяет, что оба генератора покрывают весь алфавит
func TestRandSources_CoverAlphabet(t *testing.T) {
	sources := map[string]service.CodeSource{
		"math":   service.MathRandSource{},
		"crypto": service.CryptoRandSource{},
	}

	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			seen := make(map[byte]bool)
			for i := 0; i < 20000; i++ {
				idx, err := source.Intn(len(alphabet))
				require.NoError(t, err)
				require.True(t, idx >= 0 && idx < len(alphabet))
				seen[alphabet[idx]] = true
			}
			assert.Len(t, seen, len(alphabet))
		})
	}
}

// TestValidateCode проверяет шаблон кода
func TestValidateCode(t *testing.T) {
	assert.NoError(t, service.ValidateCode("a"))
	assert.NoError(t, service.ValidateCode(strings.Repeat("z", 12)))
	assert.ErrorIs(t, service.ValidateCode(""), service.ErrInvalidCode)
	assert.ErrorIs(t, service.ValidateCode(strings.Repeat("z", 13)), service.ErrInvalidCode)
	assert.ErrorIs(t, service.ValidateCode("abc\n"), service.ErrInvalidCode)
}

// TestAllocator_ReservedCodes проверяет, что коды маршрутов не выдаются
func TestAllocator_ReservedCodes(t *testing.T) {
	for _, code := range []string{"healthz", "api"} {
		assert.ErrorIs(t, service.ValidateCode(code), service.ErrInvalidCode, code)

		_, err := service.NewCodeAllocator(mocks.NewMockLinkRepository(), service.AllocatorConfig{}).
			Allocate(context.Background(), strPtr(code))
		assert.ErrorIs(t, err, service.ErrInvalidCode, code)
	}

	// Регистр важен: маршруты gin чувствительны к нему
	assert.NoError(t, service.ValidateCode("Healthz"))

	// Сгенерированный "api" пропускается без запроса в хранилище
	repo := mocks.NewMockLinkRepository()
	allocator := service.NewCodeAllocator(repo, service.AllocatorConfig{
		CodeLength: 3,
		Source:     &sequenceSource{values: []int{26, 41, 34, 1, 1, 1}},
	})
	code, err := allocator.Allocate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "BBB", code)
	assert.Equal(t, 1, repo.ExistsCalls)

	// Пропущенный кандидат расходует попытку
	repo = mocks.NewMockLinkRepository()
	allocator = service.NewCodeAllocator(repo, service.AllocatorConfig{
		CodeLength:  3,
		MaxAttempts: 1,
		Source:      &sequenceSource{values: []int{26, 41, 34}},
	})
	_, err = allocator.Allocate(context.Background(), nil)
	assert.ErrorIs(t, err, service.ErrAllocationExhausted)
	assert.Zero(t, repo.ExistsCalls)
}
