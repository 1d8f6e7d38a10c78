package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/allocator/internal/database"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

func TestBackupJob_DisabledIsNoop(t *testing.T) {
	job := NewBackupJob(NewBackupService(nil, nil, t.TempDir(), zerolog.Nop()), 30, zerolog.Nop())

	assert.Equal(t, "backup", job.Name())
	assert.NoError(t, job.Run())
}

func TestBackupJob_Run(t *testing.T) {
	store := newMemoryStore()
	service := NewBackupService([]*database.DB{testingpkg.NewTestDB(t, "history")}, store, t.TempDir(), zerolog.Nop())

	assert.NoError(t, NewBackupJob(service, 30, zerolog.Nop()).Run())
	assert.Len(t, store.objects, 1)
}

func TestMaintenanceJob_Run(t *testing.T) {
	tests := []struct {
		name    string
		free    uint64
		usageOK bool
		wantErr bool
	}{
		{"plenty of space", 50 << 30, true, false},
		{"low space warns", 1 << 30, true, false},
		{"critical space fails", 100 << 20, true, true},
		{"stat failure", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewMaintenanceJob([]*database.DB{testingpkg.NewTestDB(t, "history")}, t.TempDir(), zerolog.Nop())
			job.usage = func(string) (*disk.UsageStat, error) {
				if !tt.usageOK {
					return nil, errors.New("no such filesystem")
				}
				return &disk.UsageStat{Free: tt.free, UsedPercent: 90}, nil
			}

			err := job.Run()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, "maintenance", NewMaintenanceJob(nil, "", zerolog.Nop()).Name())
}
