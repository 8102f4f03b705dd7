package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/SergeiKhy/link-registry/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLink(code, target string, createdAt time.Time) *models.Link {
	return &models.Link{
		Code:      code,
		TargetURL: target,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
}

// runLinkRepositoryContract общий набор проверок для всех реализаций LinkRepository
func runLinkRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.LinkRepository) {
	t.Run("создание и чтение", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		link := newLink("abc123", "https://example.com", time.Now())
		require.NoError(t, repo.Create(ctx, link))
		assert.Zero(t, link.Clicks)
		assert.Nil(t, link.LastClicked)

		got, err := repo.GetByCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, link.Code, got.Code)
		assert.Equal(t, link.TargetURL, got.TargetURL)
		assert.Zero(t, got.Clicks)
		assert.Nil(t, got.LastClicked)
		assert.True(t, link.CreatedAt.Equal(got.CreatedAt))

		exists, err := repo.Exists(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("отсутствующий код", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetByCode(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		exists, err := repo.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, repo.Delete(ctx, "missing"), repository.ErrLinkNotFound)

		_, err = repo.RecordClick(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("конфликт кода", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("dup", "https://one.example", time.Now())))
		err := repo.Create(ctx, newLink("dup", "https://two.example", time.Now()))
		assert.ErrorIs(t, err, repository.ErrCodeExists)

		got, err := repo.GetByCode(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "https://one.example", got.TargetURL)
	})

	t.Run("параллельное создание одного кода", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.Create(ctx, newLink("race", "https://example.com", time.Now()))
			}()
		}
		wg.Wait()
		close(errs)

		var succeeded int
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errors.Is(err, repository.ErrCodeExists), "неожиданная ошибка: %v", err)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("список от новых к старым", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		empty, err := repo.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Create(ctx, newLink("old", "https://example.com/1", base)))
		require.NoError(t, repo.Create(ctx, newLink("newest", "https://example.com/3", base.Add(2*time.Hour))))
		require.NoError(t, repo.Create(ctx, newLink("middle", "https://example.com/2", base.Add(time.Hour))))

		links, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, "newest", links[0].Code)
		assert.Equal(t, "middle", links[1].Code)
		assert.Equal(t, "old", links[2].Code)
	})

	t.Run("удаление и повторная выдача", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("gone", "https://example.com", time.Now())))
		_, err := repo.RecordClick(ctx, "gone")
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, "gone"))
		_, err = repo.GetByCode(ctx, "gone")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		// Удалённый код можно выдать снова, счётчик начинается с нуля
		require.NoError(t, repo.Create(ctx, newLink("gone", "https://example.org", time.Now())))
		got, err := repo.GetByCode(ctx, "gone")
		require.NoError(t, err)
		assert.Zero(t, got.Clicks)
		assert.Nil(t, got.LastClicked)
	})

	t.Run("учёт клика", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created := newLink("click", "https://example.com", time.Now().Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, created))

		updated, err := repo.RecordClick(ctx, "click")
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Clicks)
		require.NotNil(t, updated.LastClicked)
		assert.WithinDuration(t, time.Now(), *updated.LastClicked, time.Minute)
		assert.True(t, created.CreatedAt.Equal(updated.CreatedAt), "createdAt не должен меняться")

		updated, err = repo.RecordClick(ctx, "click")
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Clicks)
	})

	t.Run("параллельные клики без потерь", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("hot", "https://example.com", time.Now())))
		_, err := repo.RecordClick(ctx, "hot")
		require.NoError(t, err)

		const clicks = 50
		var wg sync.WaitGroup
		for i := 0; i < clicks; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordClick(ctx, "hot")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetByCode(ctx, "hot")
		require.NoError(t, err)
		assert.Equal(t, int64(clicks+1), got.Clicks)
	})

	t.Run("ping", func(t *testing.T) {
		repo := newRepo(t)
		assert.NoError(t, repo.Ping(context.Background()))
	})
}
