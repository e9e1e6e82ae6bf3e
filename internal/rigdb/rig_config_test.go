package rigdb

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tailscale.com/tsweb"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "rigs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func benchRig() *RigConfig {
	return &RigConfig{
		Name:                "bench",
		UDPPort:             40023,
		OffsetX:             1.5,
		OffsetY:             -2,
		OffsetZ:             0.25,
		Mode:                "live",
		VisibilityThreshold: 10000,
		Description:         "lab bench rig",
	}
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestRigConfig_CRUD(t *testing.T) {
	db := setupTestDB(t)

	id, err := db.CreateRigConfig(benchRig())
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	got, err := db.GetRigConfig(int(id))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bench", got.Name)
	assert.Equal(t, 40023, got.UDPPort)
	assert.Equal(t, 1.5, got.OffsetX)
	assert.Equal(t, -2.0, got.OffsetY)
	assert.Equal(t, 0.25, got.OffsetZ)
	assert.Equal(t, "lab bench rig", got.Description)
	assert.NotZero(t, got.CreatedAt)

	byName, err := db.GetRigConfigByName("bench")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, got.ID, byName.ID)

	got.Mode = "simulated"
	got.OffsetZ = 9
	require.NoError(t, db.UpdateRigConfig(got))

	updated, err := db.GetRigConfig(got.ID)
	require.NoError(t, err)
	assert.Equal(t, "simulated", updated.Mode)
	assert.Equal(t, 9.0, updated.OffsetZ)

	all, err := db.GetRigConfigs()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, db.DeleteRigConfig(got.ID))
	gone, err := db.GetRigConfig(got.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRigConfig_NotFound(t *testing.T) {
	db := setupTestDB(t)

	c, err := db.GetRigConfigByName("missing")
	require.NoError(t, err)
	assert.Nil(t, c)

	missing := benchRig()
	missing.ID = 42
	assert.ErrorIs(t, db.UpdateRigConfig(missing), ErrNotFound)
	assert.ErrorIs(t, db.DeleteRigConfig(42), ErrNotFound)

	all, err := db.GetRigConfigs()
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NotNil(t, all, "empty list encodes as [] not null")
}

func TestRigConfig_UniqueName(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.CreateRigConfig(benchRig())
	require.NoError(t, err)
	_, err = db.CreateRigConfig(benchRig())
	assert.Error(t, err)
}

func TestRigConfig_OrderedByName(t *testing.T) {
	db := setupTestDB(t)

	for _, name := range []string{"wand", "bench", "headset"} {
		c := benchRig()
		c.Name = name
		_, err := db.CreateRigConfig(c)
		require.NoError(t, err)
	}

	all, err := db.GetRigConfigs()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"bench", "headset", "wand"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.CreateRigConfig(benchRig())
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(tsweb.Debugger(mux)))

	t.Run("rigs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/rigs", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		// Registered; tsweb may still refuse non-debug callers with 403.
		require.NotEqual(t, http.StatusNotFound, w.Code)
		if w.Code == http.StatusOK {
			assert.Contains(t, w.Body.String(), "bench")
			assert.Contains(t, w.Body.String(), "port=40023")
		}
	})

	t.Run("tailsql", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Code)
	})
}

func TestServeRigList(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.CreateRigConfig(benchRig())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	db.serveRigList(w, httptest.NewRequest(http.MethodGet, "/debug/rigs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bench\tport=40023\tmode=live\toffset=(1.5, -2, 0.25)")
}
