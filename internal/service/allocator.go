package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"regexp"

	"github.com/SergeiKhy/link-registry/internal/repository"
)

// Ошибки аллокатора
var (
	ErrInvalidCode         = errors.New("невалидный кастомный код")
	ErrAllocationExhausted = errors.New("не удалось подобрать свободный код")
)

// Константы аллокатора
const (
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 6
	MaxCodeLength      = 12
	charset            = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,12}$`)

// reservedCodes совпадают с маршрутами верхнего уровня, GET /<code> до них не дойдёт
var reservedCodes = map[string]struct{}{
	"healthz": {},
	"api":     {},
}

// CodeSource источник случайных индексов в алфавите.
// Intn должен возвращать равномерно распределённое число в [0, n).
type CodeSource interface {
	Intn(n int) (int, error)
}

// MathRandSource быстрый некриптографический генератор.
// Коды из него угадываемы и не являются секретом.
type MathRandSource struct{}

func (MathRandSource) Intn(n int) (int, error) {
	return mrand.IntN(n), nil
}

// CryptoRandSource генератор на crypto/rand для неугадываемых кодов
type CryptoRandSource struct{}

func (CryptoRandSource) Intn(n int) (int, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(num.Int64()), nil
}

// CodeChecker проверка существования кода; реализуется LinkRepository
type CodeChecker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

type AllocatorConfig struct {
	CodeLength  int
	MaxAttempts int
	Source      CodeSource
}

// CodeAllocator выбирает код для новой ссылки.
// Проверка существования лишь экономит запрос на INSERT: уникальность
// гарантирует первичный ключ в хранилище.
type CodeAllocator struct {
	checker     CodeChecker
	codeLength  int
	maxAttempts int
	source      CodeSource
}

// NewCodeAllocator создаёт аллокатор; нулевые значения конфига заменяются значениями по умолчанию
func NewCodeAllocator(checker CodeChecker, cfg AllocatorConfig) *CodeAllocator {
	if cfg.CodeLength <= 0 || cfg.CodeLength > MaxCodeLength {
		cfg.CodeLength = DefaultCodeLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Source == nil {
		cfg.Source = MathRandSource{}
	}

	return &CodeAllocator{
		checker:     checker,
		codeLength:  cfg.CodeLength,
		maxAttempts: cfg.MaxAttempts,
		source:      cfg.Source,
	}
}

// MaxAttempts количество проверок кандидатов на один запрос
func (a *CodeAllocator) MaxAttempts() int {
	return a.maxAttempts
}

// Allocate валидирует запрошенный код или генерирует случайный
func (a *CodeAllocator) Allocate(ctx context.Context, requested *string) (string, error) {
	if requested != nil && *requested != "" {
		return a.allocateRequested(ctx, *requested)
	}

	code, _, err := a.generate(ctx, a.maxAttempts)
	return code, err
}

func (a *CodeAllocator) allocateRequested(ctx context.Context, code string) (string, error) {
	if err := ValidateCode(code); err != nil {
		return "", err
	}

	exists, err := a.checker.Exists(ctx, code)
	if err != nil {
		return "", err
	}
	if exists {
		return "", repository.ErrCodeExists
	}

	return code, nil
}

// generate пробует не более budget кандидатов и возвращает число использованных попыток
func (a *CodeAllocator) generate(ctx context.Context, budget int) (string, int, error) {
	for attempt := 1; attempt <= budget; attempt++ {
		candidate, err := a.randomCode()
		if err != nil {
			return "", attempt, fmt.Errorf("failed to generate code: %w", err)
		}
		if isReserved(candidate) {
			continue
		}

		exists, err := a.checker.Exists(ctx, candidate)
		if err != nil {
			return "", attempt, err
		}
		if !exists {
			return candidate, attempt, nil
		}
	}

	return "", budget, ErrAllocationExhausted
}

func (a *CodeAllocator) randomCode() (string, error) {
	result := make([]byte, a.codeLength)
	for i := range result {
		idx, err := a.source.Intn(len(charset))
		if err != nil {
			return "", err
		}
		result[i] = charset[idx]
	}
	return string(result), nil
}

// ValidateCode проверяет формат кода: 1-12 латинских букв или цифр, не занятых маршрутами
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) || isReserved(code) {
		return ErrInvalidCode
	}
	return nil
}

func isReserved(code string) bool {
	_, ok := reservedCodes[code]
	return ok
}
