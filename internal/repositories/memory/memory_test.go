package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

func newJob(id, org string, status models.ImportJobStatus) *models.ImportJob {
	return &models.ImportJob{
		ID:             id,
		OrganizationID: org,
		FileName:       id + ".csv",
		ImportType:     models.ImportTypeCombined,
		Status:         status,
	}
}

func TestImportJobMemory_GetByIDIsOrganizationScoped(t *testing.T) {
	repo := NewImportJobMemory()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newJob("j1", "org-a", models.ImportPending)))

	job, err := repo.GetByID(ctx, "org-a", "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1.csv", job.FileName)

	_, err = repo.GetByID(ctx, "org-b", "j1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	job.FileName = "mutated"
	again, _ := repo.GetByID(ctx, "org-a", "j1")
	assert.Equal(t, "j1.csv", again.FileName)
}

func TestImportJobMemory_TransitionIsCompareAndSet(t *testing.T) {
	repo := NewImportJobMemory()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newJob("j1", "org", models.ImportValidated)))

	ok, err := repo.Transition(ctx, "j1", []models.ImportJobStatus{models.ImportPending}, models.ImportValidating, repositories.JobUpdate{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Transition(ctx, "j1", models.SourcesOf(models.ImportCancelled), models.ImportCancelled,
		repositories.JobUpdate{ClearStaged: true})
	require.NoError(t, err)
	assert.True(t, ok)

	job, _ := repo.GetByID(ctx, "org", "j1")
	assert.Equal(t, models.ImportCancelled, job.Status)

	ok, _ = repo.Transition(ctx, "missing", []models.ImportJobStatus{models.ImportPending}, models.ImportFailed, repositories.JobUpdate{})
	assert.False(t, ok)
}

func TestImportJobMemory_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	repo := NewImportJobMemory()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newJob("j1", "org", models.ImportValidated)))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	targets := []models.ImportJobStatus{models.ImportProcessing, models.ImportCancelled}
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to models.ImportJobStatus) {
			defer wg.Done()
			results[i], _ = repo.Transition(ctx, "j1", []models.ImportJobStatus{models.ImportValidated}, to, repositories.JobUpdate{})
		}(i, to)
	}
	wg.Wait()

	assert.True(t, results[0] != results[1], "exactly one transition applies")
}

func TestImportJobMemory_UpdateProgressIsMonotonicAndGuarded(t *testing.T) {
	repo := NewImportJobMemory()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newJob("j1", "org", models.ImportValidating)))

	ok, err := repo.UpdateProgress(ctx, "j1", models.ImportValidating, repositories.JobUpdate{ProgressPercent: repositories.IntPtr(30), ValidatedRows: repositories.IntPtr(60)})
	require.NoError(t, err)
	assert.True(t, ok)
	_, _ = repo.UpdateProgress(ctx, "j1", models.ImportValidating, repositories.JobUpdate{ProgressPercent: repositories.IntPtr(10)})

	job, _ := repo.GetByID(ctx, "org", "j1")
	assert.Equal(t, 30, job.ProgressPercent)
	assert.Equal(t, 60, job.ValidatedRows)

	ok, _ = repo.UpdateProgress(ctx, "j1", models.ImportProcessing, repositories.JobUpdate{ProgressPercent: repositories.IntPtr(90)})
	assert.False(t, ok)
}

func TestImportJobMemory_ListFiltersAndPaginates(t *testing.T) {
	repo := NewImportJobMemory()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		job := newJob(fmt.Sprintf("j%d", i), "org", models.ImportValidated)
		if i%2 == 0 {
			job.Status = models.ImportCompleted
		}
		job.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		job.StagedResult = []byte(`{}`)
		require.NoError(t, repo.Create(ctx, job))
	}
	require.NoError(t, repo.Create(ctx, newJob("other", "org-2", models.ImportCompleted)))

	jobs, total, err := repo.List(ctx, repositories.ImportJobFilters{OrganizationID: "org", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j4", jobs[0].ID)
	assert.Equal(t, "j3", jobs[1].ID)
	assert.Nil(t, jobs[0].StagedResult)

	completed := models.ImportCompleted
	jobs, total, err = repo.List(ctx, repositories.ImportJobFilters{OrganizationID: "org", Status: &completed, SortOrder: "asc", Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j2", jobs[0].ID)
}

func landlord(org, key, name string) *models.Landlord {
	return &models.Landlord{Name: name, Provenance: models.Provenance{OrganizationID: org, NaturalKey: key}}
}

func TestEntityStoreMemory_CommitAndRollback(t *testing.T) {
	store := NewEntityStoreMemory()
	ctx := context.Background()

	err := store.WithinTransaction(ctx, func(tx repositories.EntityTx) error {
		require.NoError(t, tx.Create(ctx, landlord("org", "jane smith|jane@example.com", "Jane Smith")))
		id, found, err := tx.FindIDByNaturalKey(ctx, models.EntityLandlord, "org", "jane smith|jane@example.com")
		require.NoError(t, err)
		assert.True(t, found)
		assert.NotZero(t, id)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, store.Records(models.EntityLandlord), 1)

	boom := errors.New("boom")
	err = store.WithinTransaction(ctx, func(tx repositories.EntityTx) error {
		require.NoError(t, tx.Create(ctx, landlord("org", "bob|bob@example.com", "Bob")))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, store.Records(models.EntityLandlord), 1, "rolled back writes are discarded")
}

func TestEntityStoreMemory_DuplicateKeyIsPerOrganization(t *testing.T) {
	store := NewEntityStoreMemory()
	ctx := context.Background()
	store.Seed(landlord("org", "jane smith|jane@example.com", "Jane Smith"))

	err := store.WithinTransaction(ctx, func(tx repositories.EntityTx) error {
		assert.ErrorIs(t, tx.Create(ctx, landlord("org", "jane smith|jane@example.com", "Jane")), repositories.ErrDuplicateKey)
		assert.NoError(t, tx.Create(ctx, landlord("org-2", "jane smith|jane@example.com", "Jane")))
		return nil
	})
	require.NoError(t, err)

	_ = store.WithinTransaction(ctx, func(tx repositories.EntityTx) error {
		_, found, _ := tx.FindIDByNaturalKey(ctx, models.EntityTenant, "org", "jane smith|jane@example.com")
		assert.False(t, found, "keys are per entity type")
		return nil
	})
}
