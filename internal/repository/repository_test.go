package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"report-intake-go/internal/model"
	"report-intake-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 共享缓存的内存库在多连接下会出现表锁冲突
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func sampleFile(id, reportID string, at time.Time) model.File {
	ip := "127.0.0.1"
	return model.File{
		ID:               id,
		ReportID:         reportID,
		OriginalName:     "a.jpg",
		MimeType:         "image/jpeg",
		Size:             512000,
		StorageLocator:   reportID + "/a_20240101_abcd1234.jpg",
		StorageBackend:   "local",
		PublicURL:        "/uploads/" + reportID + "/a_20240101_abcd1234.jpg",
		ThumbnailURL:     "/uploads/" + reportID + "/a_20240101_abcd1234.jpg",
		UploadedAt:       at,
		UploadedByIP:     &ip,
		ProcessingStatus: model.StatusPending,
	}
}

func TestFileRepository_RoundTrip(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	want := sampleFile("file_Ab3xY9", "rep_AbC123", at)

	require.NoError(t, repo.Put(ctx, want))
	got, err := repo.Get(ctx, want.ID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.ReportID, got.ReportID)
	assert.Equal(t, want.MimeType, got.MimeType)
	assert.Equal(t, want.Size, got.Size)
	assert.Equal(t, want.ProcessingStatus, got.ProcessingStatus)
	assert.Equal(t, want.StorageLocator, got.StorageLocator)
	assert.Equal(t, want.ThumbnailURL, got.ThumbnailURL)
	require.NotNil(t, got.UploadedByIP)
	assert.Equal(t, "127.0.0.1", *got.UploadedByIP)
	assert.True(t, want.UploadedAt.Equal(got.UploadedAt))
}

func TestFileRepository_GetNotFound(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))
	_, err := repo.Get(context.Background(), "file_nope00")
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestFileRepository_ListAndCount(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, sampleFile("file_BBBBBB", "rep_AbC123", base.Add(time.Minute))))
	require.NoError(t, repo.Put(ctx, sampleFile("file_AAAAAA", "rep_AbC123", base)))
	require.NoError(t, repo.Put(ctx, sampleFile("file_CCCCCC", "rep_Other1", base)))

	files, err := repo.ListByReport(ctx, "rep_AbC123")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "file_AAAAAA", files[0].ID)
	assert.Equal(t, "file_BBBBBB", files[1].ID)

	n, err := repo.CountByReport(ctx, "rep_AbC123")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, err := repo.ListByReport(ctx, "rep_None00")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestFileRepository_PutOverwritesStatus(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))
	ctx := context.Background()
	f := sampleFile("file_Ab3xY9", "rep_AbC123", time.Now().UTC())
	require.NoError(t, repo.Put(ctx, f))

	f.ProcessingStatus = model.StatusCompleted
	require.NoError(t, repo.Put(ctx, f))

	got, err := repo.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.ProcessingStatus)

	n, err := repo.CountByReport(ctx, "rep_AbC123")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileRepository_Delete(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))
	ctx := context.Background()
	f := sampleFile("file_Ab3xY9", "rep_AbC123", time.Now().UTC())
	require.NoError(t, repo.Put(ctx, f))

	require.NoError(t, repo.Delete(ctx, f.ID))
	_, err := repo.Get(ctx, f.ID)
	assert.True(t, errs.IsKind(err, errs.NotFound))

	err = repo.Delete(ctx, f.ID)
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestReportRepository_MergeIsIdempotent(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()

	merged, err := repo.MergeUploadedFiles(ctx, "rep_AbC123", []string{"file_AAAAAA", "file_BBBBBB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"file_AAAAAA", "file_BBBBBB"}, merged)

	merged, err = repo.MergeUploadedFiles(ctx, "rep_AbC123", []string{"file_BBBBBB", "file_CCCCCC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"file_AAAAAA", "file_BBBBBB", "file_CCCCCC"}, merged)

	stored, err := repo.UploadedFiles(ctx, "rep_AbC123")
	require.NoError(t, err)
	assert.Equal(t, merged, stored)
}

func TestReportRepository_Remove(t *testing.T) {
	repo := NewReportRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.MergeUploadedFiles(ctx, "rep_AbC123", []string{"file_AAAAAA", "file_BBBBBB"})
	require.NoError(t, err)
	require.NoError(t, repo.RemoveUploadedFile(ctx, "rep_AbC123", "file_AAAAAA"))

	stored, err := repo.UploadedFiles(ctx, "rep_AbC123")
	require.NoError(t, err)
	assert.Equal(t, []string{"file_BBBBBB"}, stored)

	none, err := repo.UploadedFiles(ctx, "rep_None00")
	require.NoError(t, err)
	assert.Empty(t, none)
}
