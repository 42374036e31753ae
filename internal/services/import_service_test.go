package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/property-import-service/internal/cache"
	"github.com/SAP-F-2025/property-import-service/internal/config"
	"github.com/SAP-F-2025/property-import-service/internal/events"
	"github.com/SAP-F-2025/property-import-service/internal/importer"
	"github.com/SAP-F-2025/property-import-service/internal/jobs"
	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
	"github.com/SAP-F-2025/property-import-service/internal/repositories/memory"
)

const combinedCSV = "Type,Name,Email,Address,Landlord,Tenant,Property,Start Date,Rent Amount\n" +
	"Landlord,Jane Smith,jane@example.com,1 Harbour Rd,,,,,\n" +
	"Property,Maple Court,,12 Maple St,Jane Smith,,,,\n" +
	"Lease,,,,,Bob Tenant,Maple Court,2024-01-01,\"$1,200.00\"\n"

// recordingDispatcher keeps tasks, optionally running them inline.
type recordingDispatcher struct {
	mu    sync.Mutex
	tasks map[string][]jobs.Task
	run   func(ctx context.Context, topic string, task jobs.Task) error
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, topic string, task jobs.Task) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	if d.tasks == nil {
		d.tasks = make(map[string][]jobs.Task)
	}
	d.tasks[topic] = append(d.tasks[topic], task)
	d.mu.Unlock()
	if d.run != nil {
		return d.run(ctx, topic, task)
	}
	return nil
}

func (d *recordingDispatcher) count(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks[topic])
}

// mapCache is a JSON-round-tripping in-memory cache.
type mapCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string][]byte)
	}
	c.items[key] = data
	return nil
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	data, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}


type serviceFixture struct {
	svc        *importService
	jobs       *memory.ImportJobMemory
	store      *memory.EntityStoreMemory
	publisher  *events.MockEventPublisher
	dispatcher *recordingDispatcher
}

type fixtureOption func(*ImportServiceDeps)

func withSchema(schema *importer.Schema) fixtureOption {
	return func(d *ImportServiceDeps) { d.Schema = schema }
}

func withSyncMaxBytes(n int64) fixtureOption {
	return func(d *ImportServiceDeps) { d.Config.SyncMaxBytes = n }
}

func withCache(c cache.CacheService) fixtureOption {
	return func(d *ImportServiceDeps) { d.Cache = c }
}

func newFixture(t *testing.T, opts ...fixtureOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		jobs:       memory.NewImportJobMemory(),
		store:      memory.NewEntityStoreMemory(),
		publisher:  events.NewMockEventPublisher(testLogger()),
		dispatcher: &recordingDispatcher{},
	}
	deps := ImportServiceDeps{
		Jobs:       f.jobs,
		Store:      f.store,
		Dispatcher: f.dispatcher,
		Publisher:  f.publisher,
		Logger:     testLogger(),
		Config: config.ImportConfig{
			MaxIssuesPerEntity: 50,
			PreviewRows:        5,
			PreviewFieldLength: 120,
			FuzzyThreshold:     0.8,
			SyncMaxBytes:       1 << 20,
			MaxUploadBytes:     1 << 22,
			JobCacheTTL:        time.Hour,
			CommitTimeout:      time.Minute,
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewImportService(deps).(*importService)
	return f
}

// commitInline makes Confirm run the commit before returning.
func (f *serviceFixture) commitInline() {
	f.dispatcher.run = func(ctx context.Context, topic string, task jobs.Task) error {
		if topic == jobs.TopicCommit {
			return f.svc.RunCommit(ctx, task)
		}
		return f.svc.RunValidation(ctx, task)
	}
}

func (f *serviceFixture) eventTypes() []events.EventType {
	var types []events.EventType
	for _, e := range f.publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	return types
}

func optionalTenantSchema() *importer.Schema {
	schema := importer.DefaultSchema()
	lease := schema.Entity(models.EntityLease)
	for i := range lease.Fields {
		if lease.Fields[i].Name == "tenant" {
			lease.Fields[i].Required = false
		}
	}
	return schema
}

func upload(t *testing.T, f *serviceFixture, name, body string) *JobDetail {
	t.Helper()
	detail, err := f.svc.Upload(context.Background(), UploadRequest{
		OrganizationID: testOrg,
		ImportType:     models.ImportTypeCombined,
		FileName:       name,
		Data:           []byte(body),
	})
	require.NoError(t, err)
	return detail
}

func TestImportService_MissingTenantBlocksConfirm(t *testing.T) {
	f := newFixture(t)

	detail := upload(t, f, "portfolio.csv", combinedCSV)

	require.Equal(t, models.ImportValidated, detail.Job.Status)
	assert.Equal(t, 50, detail.Job.ProgressPercent)
	assert.Equal(t, 3, detail.Job.TotalRows)
	require.NotNil(t, detail.Validation)
	assert.False(t, detail.Validation.CanImport)
	assert.Equal(t, 1, detail.Validation.ErrorCount)
	lease := detail.Validation.Entities["lease"]
	require.Len(t, lease.Errors, 1)
	assert.Equal(t, 4, lease.Errors[0].Row)
	assert.Equal(t, "tenant", lease.Errors[0].Field)
	assert.Equal(t, 1, detail.Validation.Entities["landlord"].ValidRows)
	assert.Equal(t, 1, detail.Validation.Entities["property"].ValidRows)

	_, err := f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
	assert.ErrorIs(t, err, ErrImportHasErrors)
	assert.True(t, IsConflict(err))
	var rule *BusinessRuleError
	require.ErrorAs(t, err, &rule)
	assert.Equal(t, 1, rule.Context["error_count"])

	job, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportValidated, job.Job.Status)
	assert.Zero(t, f.dispatcher.count(jobs.TopicCommit))
	assert.Empty(t, f.store.Records(models.EntityLandlord))
}

func TestImportService_OptionalTenantCommitsWithNullReference(t *testing.T) {
	f := newFixture(t, withSchema(optionalTenantSchema()))
	f.commitInline()

	detail := upload(t, f, "portfolio.csv", combinedCSV)
	require.True(t, detail.Validation.CanImport)
	assert.Equal(t, 1, detail.Validation.WarningCount)

	done, err := f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ImportCompleted, done.Job.Status)
	assert.Equal(t, 100, done.Job.ProgressPercent)
	assert.Equal(t, 3, done.Job.SuccessCount)
	assert.Zero(t, done.Job.ErrorCount)
	assert.NotNil(t, done.Job.CompletedAt)
	require.NotNil(t, done.Summary)
	assert.Empty(t, done.Summary.FailedEntity)

	landlords := f.store.Records(models.EntityLandlord)
	properties := f.store.Records(models.EntityProperty)
	leases := f.store.Records(models.EntityLease)
	require.Len(t, landlords, 1)
	require.Len(t, properties, 1)
	require.Len(t, leases, 1)
	assert.Equal(t, landlords[0].RecordID(), *properties[0].(*models.Property).LandlordID)
	lease := leases[0].(*models.Lease)
	assert.Nil(t, lease.TenantID)
	assert.Equal(t, properties[0].RecordID(), *lease.PropertyID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), lease.StartDate)

	assert.Equal(t, []events.EventType{events.EventImportValidated, events.EventImportCompleted}, f.eventTypes())
}

func TestImportService_CommitFailureFailsJobAndKeepsEarlierTypes(t *testing.T) {
	f := newFixture(t, withSchema(optionalTenantSchema()))
	f.commitInline()
	f.store.BeforeCreate = func(record models.Record) error {
		if record.Entity() == models.EntityLease {
			return errors.New("deadlock detected")
		}
		return nil
	}

	detail := upload(t, f, "portfolio.csv", combinedCSV)
	done, err := f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ImportFailed, done.Job.Status)
	require.NotNil(t, done.Job.ErrorMessage)
	assert.Contains(t, *done.Job.ErrorMessage, "lease")
	assert.Contains(t, *done.Job.ErrorMessage, "deadlock detected")
	assert.Equal(t, 2, done.Job.SuccessCount)
	assert.Equal(t, 1, done.Job.ErrorCount)
	require.NotNil(t, done.Summary)
	assert.Equal(t, "lease", done.Summary.FailedEntity)
	require.NotNil(t, done.Validation)
	assert.True(t, done.Validation.CanImport)

	stored, err := f.jobs.GetByID(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.StagedResult)

	fetched, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.Validation)
	assert.Equal(t, done.Validation.TotalRows, fetched.Validation.TotalRows)

	assert.Len(t, f.store.Records(models.EntityLandlord), 1)
	assert.Len(t, f.store.Records(models.EntityProperty), 1)
	assert.Empty(t, f.store.Records(models.EntityLease))
	assert.Contains(t, f.eventTypes(), events.EventImportFailed)
}

func TestImportService_CancelConfirmRaceHasOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, withSchema(optionalTenantSchema()))
		detail := upload(t, f, "portfolio.csv", combinedCSV)

		var wg sync.WaitGroup
		var confirmErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, confirmErr = f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.Cancel(context.Background(), testOrg, detail.Job.ID)
		}()
		wg.Wait()

		require.True(t, (confirmErr == nil) != (cancelErr == nil), "confirm=%v cancel=%v", confirmErr, cancelErr)
		job, err := f.jobs.GetByID(context.Background(), testOrg, detail.Job.ID)
		require.NoError(t, err)
		if confirmErr == nil {
			assert.ErrorIs(t, cancelErr, ErrInvalidTransition)
			assert.Equal(t, models.ImportProcessing, job.Status)
			assert.Equal(t, 1, f.dispatcher.count(jobs.TopicCommit))
		} else {
			assert.ErrorIs(t, confirmErr, ErrInvalidTransition)
			assert.Equal(t, models.ImportCancelled, job.Status)
			assert.Empty(t, job.StagedResult)
			assert.Zero(t, f.dispatcher.count(jobs.TopicCommit))
		}
	}
}

func TestImportService_FileProblemsFailTheJob(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     string
		want     string
	}{
		{"unsupported format", "portfolio.pdf", "%PDF-1.4", "unsupported file format"},
		{"corrupt workbook", "portfolio.xlsx", "not a zip archive", "failed to open Excel file"},
		{"header only", "portfolio.csv", "Type,Name\n", "at least one data row"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			detail := upload(t, f, tt.filename, tt.body)

			assert.Equal(t, models.ImportFailed, detail.Job.Status)
			require.NotNil(t, detail.Job.ErrorMessage)
			assert.Contains(t, *detail.Job.ErrorMessage, tt.want)
			assert.Nil(t, detail.Validation)
			stored, err := f.jobs.GetByID(context.Background(), testOrg, detail.Job.ID)
			require.NoError(t, err)
			assert.Empty(t, stored.StagedResult)
			assert.Equal(t, []events.EventType{events.EventImportFailed}, f.eventTypes())

			_, err = f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestImportService_UploadRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), UploadRequest{ImportType: "lease", FileName: "a.csv", Data: []byte("x")})
	assert.True(t, IsValidation(err))

	_, err = f.svc.Upload(context.Background(), UploadRequest{OrganizationID: testOrg, ImportType: "vendor", FileName: "a.csv"})
	assert.True(t, IsValidation(err))

	jobsList, total, err := f.jobs.List(context.Background(), repositories.ImportJobFilters{OrganizationID: testOrg})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, jobsList)
}

func TestImportService_LargeFileIsValidatedInBackground(t *testing.T) {
	f := newFixture(t, withSyncMaxBytes(16))

	detail := upload(t, f, "portfolio.csv", combinedCSV)
	assert.Equal(t, models.ImportPending, detail.Job.Status)
	require.Equal(t, 1, f.dispatcher.count(jobs.TopicValidate))

	task := jobs.Task{JobID: detail.Job.ID, OrganizationID: testOrg}
	require.NoError(t, f.svc.RunValidation(context.Background(), task))

	got, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportValidated, got.Job.Status)
	assert.Equal(t, 1, got.Validation.ErrorCount)

	// redelivery after the buffer was consumed does nothing
	require.NoError(t, f.svc.RunValidation(context.Background(), task))
	got, err = f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportValidated, got.Job.Status)
}

func TestImportService_LostUploadFailsPendingJob(t *testing.T) {
	f := newFixture(t, withSyncMaxBytes(16))
	detail := upload(t, f, "portfolio.csv", combinedCSV)
	f.svc.takeUpload(detail.Job.ID)

	require.NoError(t, f.svc.RunValidation(context.Background(), jobs.Task{JobID: detail.Job.ID, OrganizationID: testOrg}))

	got, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportFailed, got.Job.Status)
	assert.Equal(t, "uploaded file is no longer available", *got.Job.ErrorMessage)
}

func TestImportService_CancelPendingDropsUpload(t *testing.T) {
	f := newFixture(t, withSyncMaxBytes(16))
	detail := upload(t, f, "portfolio.csv", combinedCSV)

	cancelled, err := f.svc.Cancel(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportCancelled, cancelled.Job.Status)
	assert.NotNil(t, cancelled.Job.CompletedAt)

	require.NoError(t, f.svc.RunValidation(context.Background(), jobs.Task{JobID: detail.Job.ID, OrganizationID: testOrg}))
	got, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportCancelled, got.Job.Status)

	_, err = f.svc.Cancel(context.Background(), testOrg, detail.Job.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, []events.EventType{events.EventImportCancelled}, f.eventTypes())
}

func TestImportService_DispatchFailureFailsJob(t *testing.T) {
	f := newFixture(t, withSchema(optionalTenantSchema()))
	detail := upload(t, f, "portfolio.csv", combinedCSV)
	f.dispatcher.err = errors.New("router closed")

	_, err := f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
	require.Error(t, err)

	got, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportFailed, got.Job.Status)
	assert.Contains(t, *got.Job.ErrorMessage, "router closed")
}

func TestImportService_JobsAreOrganizationScoped(t *testing.T) {
	f := newFixture(t)
	detail := upload(t, f, "portfolio.csv", combinedCSV)

	_, err := f.svc.GetJob(context.Background(), "org-2", detail.Job.ID)
	assert.ErrorIs(t, err, ErrImportJobNotFound)
	assert.True(t, IsNotFound(err))

	_, err = f.svc.Cancel(context.Background(), "", detail.Job.ID)
	assert.ErrorIs(t, err, ErrMissingOrganization)

	_, _, err = f.svc.ListJobs(context.Background(), repositories.ImportJobFilters{})
	assert.ErrorIs(t, err, ErrMissingOrganization)

	list, total, err := f.svc.ListJobs(context.Background(), repositories.ImportJobFilters{OrganizationID: testOrg})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, detail.Job.ID, list[0].ID)
}

func TestImportService_GetJobServesFromCache(t *testing.T) {
	c := &mapCache{}
	f := newFixture(t, withCache(c))
	detail := upload(t, f, "portfolio.csv", combinedCSV)

	var cached JobDetail
	require.NoError(t, c.Get(context.Background(), cacheKey(testOrg, detail.Job.ID), &cached))
	assert.Equal(t, models.ImportValidated, cached.Job.Status)
	require.NotNil(t, cached.Validation)

	cached.Job.FileName = "from-cache.csv"
	require.NoError(t, c.Set(context.Background(), cacheKey(testOrg, detail.Job.ID), &cached, time.Hour))

	got, err := f.svc.GetJob(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, "from-cache.csv", got.Job.FileName)
}

func TestImportService_Templates(t *testing.T) {
	f := newFixture(t)

	templates := f.svc.Templates("/api/v1/imports/templates")
	assert.Len(t, templates, 6)

	data, filename, err := f.svc.TemplateFile("tenant", "")
	require.NoError(t, err)
	assert.Equal(t, "tenant_import_template.xlsx", filename)
	assert.NotEmpty(t, data)

	_, _, err = f.svc.TemplateFile("vendor", importer.FormatCSV)
	assert.True(t, IsNotFound(err))
}

func TestImportService_BackgroundRunnerEndToEnd(t *testing.T) {
	f := newFixture(t, withSchema(optionalTenantSchema()), withSyncMaxBytes(16))

	runner, err := jobs.NewRunner(testLogger(), 16)
	require.NoError(t, err)
	runner.Handle(jobs.TopicValidate, f.svc.RunValidation)
	runner.Handle(jobs.TopicCommit, f.svc.RunCommit)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = runner.Close()
	})
	require.NoError(t, runner.Start(ctx))
	f.svc.dispatcher = runner

	detail := upload(t, f, "portfolio.csv", combinedCSV)
	status := func() models.ImportJobStatus {
		job, err := f.jobs.GetByID(context.Background(), testOrg, detail.Job.ID)
		require.NoError(t, err)
		return job.Status
	}

	assert.Eventually(t, func() bool { return status() == models.ImportValidated }, 5*time.Second, 10*time.Millisecond)

	_, err = f.svc.Confirm(context.Background(), testOrg, detail.Job.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return status() == models.ImportCompleted }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, f.store.Records(models.EntityLease), 1)
}
