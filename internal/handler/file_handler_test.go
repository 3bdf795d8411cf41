package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"report-intake-go/internal/lifecycle"
	"report-intake-go/internal/repository"
	"report-intake-go/internal/service"
	"report-intake-go/internal/validation"
	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/lock"
	"report-intake-go/pkg/storage"
	"report-intake-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testReport = "rep_AbC123"

type part struct {
	name, mime string
	body       []byte
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errs.Error     `json:"error"`
}

type testServer struct {
	router *gin.Engine
	jwt    *token.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 共享缓存的内存库在多连接下会出现表锁冲突
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	backend, err := storage.NewLocalBackend(afero.NewMemMapFs(), "/uploads-root", "/uploads")
	require.NoError(t, err)

	svc := service.NewUploadService(
		repository.NewFileRepository(db),
		repository.NewReportRepository(db),
		backend,
		validation.NewGate(0, 0),
		lifecycle.NewMachine(lifecycle.Lenient),
		lock.NewLocalLocker(),
		nil,
	)
	jwtManager := token.NewJWTManager("test-secret", 1)

	r := gin.New()
	RegisterFileRoutes(r.Group("/api/v1"), NewFileHandler(svc), jwtManager, nil)
	return &testServer{router: r, jwt: jwtManager}
}

func (s *testServer) bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken("tester", role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) upload(t *testing.T, reportID string, parts ...part) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, p.name))
		h.Set("Content-Type", p.mime)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/"+reportID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *testServer) request(t *testing.T, method, path, auth, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return s.do(t, req)
}

func TestUploadBatch_PartialSuccess(t *testing.T) {
	s := newTestServer(t)

	w, env := s.upload(t, testReport,
		part{"a.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 500*1024)},
		part{"b.exe", "application/x-msdownload", make([]byte, 1024)},
	)
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	require.True(t, env.Success)

	var batch service.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	require.Len(t, batch.Uploaded, 1)
	assert.Equal(t, "a.jpg", batch.Uploaded[0].OriginalName)
	assert.Equal(t, "pending", string(batch.Uploaded[0].ProcessingStatus))
	assert.True(t, strings.HasPrefix(batch.Uploaded[0].PublicURL, "/uploads/"+testReport+"/"))
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, "unsupported type", batch.Failed[0].Reason)
	assert.Equal(t, 2, batch.TotalRequested)
	assert.Equal(t, 1, batch.TotalUploaded)
}

func TestUploadBatch_StatusCodes(t *testing.T) {
	s := newTestServer(t)

	w, env := s.upload(t, testReport, part{"a.pdf", "application/pdf", []byte("%PDF-1.7")})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)

	w, env = s.upload(t, testReport, part{"x.exe", "application/x-msdownload", []byte("MZ")})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.True(t, env.Success, "全部失败仍返回批次结果")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/"+testReport+"/files", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w, env = s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, errs.Validation, env.Error.Kind)
}

func TestFileLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, env := s.upload(t, testReport, part{"a.pdf", "application/pdf", []byte("%PDF-1.7")})
	var batch service.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	id := batch.Uploaded[0].ID

	user := s.bearer(t, "USER")
	admin := s.bearer(t, token.RoleAdmin)

	w, _ := s.request(t, http.MethodGet, "/api/v1/files/"+id, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.request(t, http.MethodGet, "/api/v1/files/"+id, user, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"processingStatus":"pending"`)

	w, env = s.request(t, http.MethodGet, "/api/v1/reports/"+testReport+"/files", user, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), id)

	w, _ = s.request(t, http.MethodPut, "/api/v1/files/"+id+"/status", user, `{"status":"completed"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.request(t, http.MethodPut, "/api/v1/files/"+id+"/status", admin, `{"status":"completed"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"processingStatus":"completed"`)

	w, env = s.request(t, http.MethodPut, "/api/v1/files/"+id+"/status", admin, `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errs.Validation, env.Error.Kind)

	w, _ = s.request(t, http.MethodPut, "/api/v1/files/file_nope00/status", admin, `{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.request(t, http.MethodDelete, "/api/v1/files/"+id, admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", string(env.Data))

	w, env = s.request(t, http.MethodDelete, "/api/v1/files/"+id, admin, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errs.NotFound, env.Error.Kind)

	w, _ = s.request(t, http.MethodGet, "/api/v1/files/"+id, user, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSupportedTypesRoute(t *testing.T) {
	s := newTestServer(t)
	w, env := s.request(t, http.MethodGet, "/api/v1/files/supported-types", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var info service.SupportedTypesInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, int64(10*1024*1024), info.MaxFileSize)
	assert.Equal(t, 10, info.MaxFilesPerReport)
	assert.Contains(t, info.Types[validation.CategoryDocument], "application/pdf")
}

func TestStatusFor(t *testing.T) {
	want := map[errs.Kind]int{
		errs.Validation:       http.StatusBadRequest,
		errs.NotFound:         http.StatusNotFound,
		errs.AlreadyExists:    http.StatusConflict,
		errs.PermissionDenied: http.StatusForbidden,
		errs.RateLimited:      http.StatusTooManyRequests,
		errs.Unavailable:      http.StatusServiceUnavailable,
		errs.Timeout:          http.StatusGatewayTimeout,
		errs.SystemFailure:    http.StatusInternalServerError,
		errs.DataIntegrity:    http.StatusInternalServerError,
	}
	for _, k := range errs.Kinds() {
		assert.Equal(t, want[k], StatusFor(k), k)
	}
}

func TestReadParts_KeepsUnreadablePart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	w, err := mw.CreateFormFile(FormField, "ok.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	// 没有内容也没有临时文件的部分无法打开
	headers := append(form.File[FormField], &multipart.FileHeader{Filename: "broken.pdf"})
	inputs := readParts(headers, 1024)
	require.Len(t, inputs, 2)
	assert.Equal(t, "ok.txt", inputs[0].Name)
	assert.Equal(t, []byte("hello"), inputs[0].Body)
	assert.NoError(t, inputs[0].ReadErr)
	assert.Equal(t, "broken.pdf", inputs[1].Name)
	assert.Error(t, inputs[1].ReadErr)
	assert.Nil(t, inputs[1].Body)
}
