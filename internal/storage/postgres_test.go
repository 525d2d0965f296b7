package storage

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/gnc_reports/internal/config"
	"github.com/iWorld-y/gnc_reports/internal/model"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DBConfig
		want string
	}{
		{
			name: "plain",
			cfg:  config.DBConfig{Host: "localhost", Port: 5432, User: "gnc", Password: "secret", Name: "reports"},
			want: "host=localhost port=5432 user=gnc password=secret dbname=reports sslmode=disable",
		},
		{
			name: "quoted password",
			cfg:  config.DBConfig{Host: "db", Port: 5433, User: "gnc", Password: `it's a \secret`, Name: "reports", SSLMode: "require"},
			want: `host=db port=5433 user=gnc password='it\'s a \\secret' dbname=reports sslmode=require`,
		},
		{
			name: "empty password",
			cfg:  config.DBConfig{Host: "db", Port: 5432, User: "gnc", Name: "reports"},
			want: "host=db port=5432 user=gnc password='' dbname=reports sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connString(tt.cfg))
		})
	}
}

func TestRemoveNullBytes(t *testing.T) {
	assert.Equal(t, "ab", removeNullBytes("a\x00b"))
}

// 需要真实数据库，设置 GNC_TEST_DB_HOST 后运行
func TestStorage_SaveRun(t *testing.T) {
	host := os.Getenv("GNC_TEST_DB_HOST")
	if host == "" {
		t.Skip("GNC_TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("GNC_TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}

	s, err := NewStorage(config.DBConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("GNC_TEST_DB_USER"),
		Password: os.Getenv("GNC_TEST_DB_PASSWORD"),
		Name:     os.Getenv("GNC_TEST_DB_NAME"),
	})
	require.NoError(t, err)
	defer s.Close()

	now := time.Now()
	report := &model.BatchReport{
		RunID:      uuid.NewString(),
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Dir:        "/tmp/descargas_gnc",
		Artifacts:  []string{"a.xls"},
		Recoveries: 1,
		Results: []model.ItemResult{
			{Item: model.ReportItem{ID: "1", Name: "Conversiones"}, Status: model.StatusSucceeded, Stage: model.StageDone},
			{Item: model.ReportItem{ID: "2", Name: "Desmontajes"}, Status: model.StatusFailed, Stage: model.StageSelecting, Err: errors.New("boom")},
		},
	}
	require.NoError(t, s.SaveRun(context.Background(), report))

	var items int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM batch_items i JOIN batch_runs r ON r.id = i.batch_run_id WHERE r.run_id = $1`,
		report.RunID).Scan(&items))
	assert.Equal(t, 2, items)

	// run_id 唯一，重复保存应失败且不留下部分数据
	assert.Error(t, s.SaveRun(context.Background(), report))
}
