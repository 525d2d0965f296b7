package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/model"
)

type object struct {
	data        string
	contentType string
}

type memUploader struct {
	mu      sync.Mutex
	objects map[string]object
	failKey string
}

func (m *memUploader) Upload(_ context.Context, key string, r io.Reader, size int64, ct string) error {
	if key == m.failKey {
		return errors.New("access denied")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: string(data), contentType: ct}
	return nil
}

func testReport(t *testing.T, files map[string]string) *model.BatchReport {
	t.Helper()
	dir := t.TempDir()
	report := &model.BatchReport{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Dir:       dir,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		report.Artifacts = append(report.Artifacts, name)
	}
	report.SortArtifacts()
	return report
}

func TestArchive_UploadsArtifacts(t *testing.T) {
	up := &memUploader{objects: map[string]object{}}
	report := testReport(t, map[string]string{"a.xls": "AAA", "b.csv": "B"})

	require.NoError(t, NewArchiver(up, "/gnc/").Archive(context.Background(), report))

	assert.Equal(t, object{"AAA", "application/vnd.ms-excel"}, up.objects["gnc/2026-03-04/run-1/a.xls"])
	assert.Equal(t, object{"B", "text/csv"}, up.objects["gnc/2026-03-04/run-1/b.csv"])
}

func TestArchive_PartialFailure(t *testing.T) {
	up := &memUploader{objects: map[string]object{}, failKey: "2026-03-04/run-1/a.xls"}
	report := testReport(t, map[string]string{"a.xls": "A", "b.xls": "B"})
	report.Artifacts = append(report.Artifacts, "missing.xls")

	err := NewArchiver(up, "").Archive(context.Background(), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Len(t, up.objects, 1)
	assert.Contains(t, up.objects, "2026-03-04/run-1/b.xls")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.ms-excel", contentType("X.XLS"))
	assert.Equal(t, "application/octet-stream", contentType("notes"))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.ArchiveConfig{})
	assert.Error(t, err)

	_, err = NewClient(config.ArchiveConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	c, err := NewClient(config.ArchiveConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "gnc-reports", c.bucket)
}
