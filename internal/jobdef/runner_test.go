package jobdef

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fileimport/internal/importer"
	"github.com/JonMunkholm/fileimport/internal/sink"
)

type finishCall struct {
	job    string
	failed bool
}

type runnerFixture struct {
	runner   *Runner
	provider *memProvider
	finishes []finishCall
	dataDir  string
}

func newRunnerFixture(t *testing.T, finishErr error) *runnerFixture {
	t.Helper()

	jobsDir, dataDir := t.TempDir(), t.TempDir()
	writeJob(t, jobsDir, "numbers.yaml", `
directory: `+dataDir+`
pattern: '\.csv$'
header_rows: 1
insert_sql: INSERT INTO numbers (n) VALUES ($1)
columns:
  - {type: int32, not_null: true}
`)
	reg, err := LoadDir(jobsDir, Defaults{})
	require.NoError(t, err)

	f := &runnerFixture{provider: &memProvider{}, dataDir: dataDir}
	f.runner = &Runner{
		Registry: reg,
		Limiter:  importer.NewRunLimiter(1, 50*time.Millisecond),
		Provider: func(_ context.Context, job *Job) (sink.StatementProvider, FinishFunc, error) {
			return f.provider, func(_ context.Context, failed bool) error {
				f.finishes = append(f.finishes, finishCall{job: job.Name, failed: failed})
				return finishErr
			}, nil
		},
	}
	return f
}

func TestRunner_Run(t *testing.T) {
	f := newRunnerFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "a.csv"), []byte("n\n1\n2\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "skip.txt"), []byte("n\nx\n"), 0o600))

	res, err := f.runner.Run(context.Background(), "numbers", "")
	require.NoError(t, err)
	assert.True(t, res.Successful, res.Message)
	assert.Equal(t, "1 file(s) imported", res.Message)
	require.Len(t, res.Files, 1)
	assert.Equal(t, 2, res.Files[0].DataRows)

	assert.Equal(t, [][]any{{int32(1)}, {int32(2)}}, f.provider.stmt.executed)
	assert.Equal(t, []finishCall{{job: "numbers", failed: false}}, f.finishes)
	assert.Equal(t, 0, f.runner.Status().Active, "slot released")
}

func TestRunner_FailedFileFinishesAsFailed(t *testing.T) {
	f := newRunnerFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "a.csv"), []byte("n\n1\nx\n"), 0o600))

	res, err := f.runner.Run(context.Background(), "numbers", "")
	require.NoError(t, err)
	assert.False(t, res.Successful)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, []finishCall{{job: "numbers", failed: true}}, f.finishes)
}

func TestRunner_FinishError(t *testing.T) {
	f := newRunnerFixture(t, errors.New("commit refused"))
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "a.csv"), []byte("n\n1\n"), 0o600))

	res, err := f.runner.Run(context.Background(), "numbers", "")
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.Contains(t, res.Message, "commit refused")
}

func TestRunner_DirOverride(t *testing.T) {
	f := newRunnerFixture(t, nil)
	sub := filepath.Join(f.dataDir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.csv"), []byte("n\n7\n"), 0o600))

	for _, dir := range []string{sub, "2024"} {
		res, err := f.runner.Run(context.Background(), "numbers", dir)
		require.NoError(t, err)
		require.Len(t, res.Files, 1)
		assert.Equal(t, sub, filepath.Dir(res.Files[0].Path))
	}
}

func TestRunner_DirOverrideOutsideJob(t *testing.T) {
	f := newRunnerFixture(t, nil)
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "b.csv"), []byte("n\n7\n"), 0o600))

	for _, dir := range []string{other, "/etc", "..", "../" + filepath.Base(other), "2024/../../x"} {
		t.Run(dir, func(t *testing.T) {
			_, err := f.runner.Run(context.Background(), "numbers", dir)
			assert.True(t, errors.Is(err, ErrDirOutsideJob), "got %v", err)
		})
	}
	assert.Empty(t, f.finishes)
	assert.Nil(t, f.provider.stmt, "nothing imported")
	assert.Equal(t, 0, f.runner.Status().Active)
}

func TestJob_ResolveDir(t *testing.T) {
	job := &Job{Directory: "/data/in"}

	tests := []struct {
		dir  string
		want string
		ok   bool
	}{
		{"", "/data/in", true},
		{"/data/in", "/data/in", true},
		{"/data/in/", "/data/in", true},
		{"/data/in/a/b", "/data/in/a/b", true},
		{"a", "/data/in/a", true},
		{"a/../b", "/data/in/b", true},
		{"..dots", "/data/in/..dots", true},
		{"/data/inbox", "", false},
		{"/etc", "", false},
		{"..", "", false},
		{"a/../../x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			got, err := job.ResolveDir(tt.dir)
			if !tt.ok {
				assert.True(t, errors.Is(err, ErrDirOutsideJob), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunner_UnknownJob(t *testing.T) {
	f := newRunnerFixture(t, nil)

	_, err := f.runner.Run(context.Background(), "nope", "")
	assert.True(t, errors.Is(err, ErrUnknownJob))
	assert.Empty(t, f.finishes)
}

func TestRunner_TooManyRuns(t *testing.T) {
	f := newRunnerFixture(t, nil)
	require.True(t, f.runner.Limiter.TryAcquire())
	defer f.runner.Limiter.Release()

	_, err := f.runner.Run(context.Background(), "numbers", "")
	assert.True(t, errors.Is(err, importer.ErrTooManyRuns))
}

func TestRunner_Jobs(t *testing.T) {
	f := newRunnerFixture(t, nil)
	jobs := f.runner.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "numbers", jobs[0].Name)
}
