package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"report-intake-go/internal/model"
	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/storage"
	"report-intake-go/pkg/tasks"
)

type memFileRepo struct {
	mu     sync.Mutex
	files  map[string]model.File
	putErr error
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{files: make(map[string]model.File)}
}

func (r *memFileRepo) Get(_ context.Context, id string) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "file %s not found", id)
	}
	return &f, nil
}

func (r *memFileRepo) ListByReport(_ context.Context, reportID string) ([]model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.File{}
	for _, f := range r.files {
		if f.ReportID == reportID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memFileRepo) CountByReport(ctx context.Context, reportID string) (int, error) {
	files, err := r.ListByReport(ctx, reportID)
	return len(files), err
}

func (r *memFileRepo) Put(_ context.Context, f model.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	r.files[f.ID] = f
	return nil
}

func (r *memFileRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return errs.Newf(errs.NotFound, "file %s not found", id)
	}
	delete(r.files, id)
	return nil
}

type memReportRepo struct {
	mu       sync.Mutex
	uploaded map[string][]string
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{uploaded: make(map[string][]string)}
}

func (r *memReportRepo) MergeUploadedFiles(_ context.Context, reportID string, ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploaded[reportID] = model.MergeFileIDs(r.uploaded[reportID], ids)
	return r.uploaded[reportID], nil
}

func (r *memReportRepo) RemoveUploadedFile(_ context.Context, reportID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploaded[reportID] = model.RemoveFileID(r.uploaded[reportID], id)
	return nil
}

func (r *memReportRepo) UploadedFiles(_ context.Context, reportID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.uploaded[reportID]...), nil
}

// fakeBackend 记录上传与删除；failFor 中的文件名上传时返回对应错误。
type fakeBackend struct {
	mu       sync.Mutex
	objects  map[storage.Locator][]byte
	deleted  []storage.Locator
	failFor  map[string]error
	onUpload func(obj storage.Object)
	seq      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[storage.Locator][]byte), failFor: make(map[string]error)}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Upload(_ context.Context, obj storage.Object) (storage.Locator, error) {
	if b.onUpload != nil {
		b.onUpload(obj)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.failFor[obj.Name]; ok {
		return "", err
	}
	b.seq++
	loc := storage.Locator(fmt.Sprintf("%s/%d-%s", obj.ReportID, b.seq, obj.Name))
	b.objects[loc] = obj.Body
	return loc, nil
}

func (b *fakeBackend) PublicURL(_ context.Context, loc storage.Locator) (string, error) {
	return "https://files.test/" + string(loc), nil
}

func (b *fakeBackend) ThumbnailURL(_ context.Context, loc storage.Locator) (string, error) {
	return "https://files.test/thumb/" + string(loc), nil
}

func (b *fakeBackend) Delete(_ context.Context, loc storage.Locator) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, loc)
	if _, ok := b.objects[loc]; !ok {
		return false, nil
	}
	delete(b.objects, loc)
	return true, nil
}

func (b *fakeBackend) objectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []tasks.FileUploadedTask
}

func (p *fakePublisher) PublishFileUploaded(_ context.Context, task tasks.FileUploadedTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, task)
	return nil
}

type panicBackend struct{ *fakeBackend }

func (panicBackend) Upload(context.Context, storage.Object) (storage.Locator, error) {
	panic("backend exploded")
}
