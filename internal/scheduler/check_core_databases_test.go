package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/allocator/internal/database"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

func TestCheckDatabasesJob_Name(t *testing.T) {
	job := NewCheckDatabasesJob(nil, zerolog.Nop())
	assert.Equal(t, "check_databases", job.Name())
}

func TestCheckDatabasesJob_Run_NilDatabases(t *testing.T) {
	job := NewCheckDatabasesJob(map[string]*database.DB{"history": nil}, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckDatabasesJob_Run(t *testing.T) {
	job := NewCheckDatabasesJob(map[string]*database.DB{
		"history":   testingpkg.NewTestDB(t, "history"),
		"snapshots": testingpkg.NewTestDB(t, "snapshots"),
	}, zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestCheckDatabasesJob_Run_ClosedDatabase(t *testing.T) {
	db := testingpkg.NewTestDB(t, "history")
	job := NewCheckDatabasesJob(map[string]*database.DB{"history": db}, zerolog.Nop())
	_ = db.Conn().Close()

	err := job.Run()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "history")
}
