package infrastructure

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

func setupTestStore(t *testing.T, namespace string) *SQLiteRecordStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "db", "records.db")
	store, err := NewSQLiteRecordStore(dbPath, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRecordStore_GetMissing(t *testing.T) {
	store := setupTestStore(t, "")

	record, err := store.Get("3")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSQLiteRecordStore_PutAndGet(t *testing.T) {
	store := setupTestStore(t, "")

	require.NoError(t, store.Put(domain.NewDownloadRecord("3", "/tmp/app.apk")))

	record, err := store.Get("3")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.RecordNamespace, record.Namespace)
	assert.Equal(t, "3", record.VersionKey)
	assert.Equal(t, "/tmp/app.apk", record.FilePath)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestSQLiteRecordStore_PutReplaces(t *testing.T) {
	store := setupTestStore(t, "")

	require.NoError(t, store.Put(domain.NewDownloadRecord("3", "/tmp/old.apk")))
	require.NoError(t, store.Put(domain.NewDownloadRecord("3", "/tmp/new.apk")))

	record, err := store.Get("3")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/new.apk", record.FilePath)

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSQLiteRecordStore_PutRequiresVersion(t *testing.T) {
	store := setupTestStore(t, "")
	assert.Error(t, store.Put(domain.NewDownloadRecord("", "/tmp/a")))
}

func TestSQLiteRecordStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t, "")

	require.NoError(t, store.Put(domain.NewDownloadRecord("1", "/tmp/1.apk")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.Put(domain.NewDownloadRecord("2", "/tmp/2.apk")))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[0].VersionKey)
	assert.Equal(t, "1", records[1].VersionKey)

	require.NoError(t, store.Delete("1"))
	require.NoError(t, store.Delete("missing"))

	records, err = store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].VersionKey)
}

func TestSQLiteRecordStore_NamespacesAreIsolated(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")

	a, err := NewSQLiteRecordStore(dbPath, "download")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteRecordStore(dbPath, "beta")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Put(domain.NewDownloadRecord("3", "/tmp/a.apk")))

	record, err := b.Get("3")
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, b.Put(domain.NewDownloadRecord("3", "/tmp/b.apk")))
	record, err = a.Get("3")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.apk", record.FilePath)
}

func TestSQLiteRecordStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")

	store, err := NewSQLiteRecordStore(dbPath, "")
	require.NoError(t, err)
	require.NoError(t, store.Put(domain.NewDownloadRecord("3", "/tmp/app.apk")))
	require.NoError(t, store.Ping())
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteRecordStore(dbPath, "")
	require.NoError(t, err)
	defer reopened.Close()

	record, err := reopened.Get("3")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "/tmp/app.apk", record.FilePath)
}
