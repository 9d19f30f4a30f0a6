package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsConcurrencyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"lock timeout", &pq.Error{Code: "55P03"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped", fmt.Errorf("failed to lock: %w", &pq.Error{Code: "55P03"}), true},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConcurrencyError(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "55P03"}))
	assert.True(t, IsLockTimeout(&pq.Error{Code: "55P03"}))
}

func TestSchema_Embedded(t *testing.T) {
	files, err := MigrationFiles()
	assert.NoError(t, err)
	assert.NotEmpty(t, files)

	sql, err := Schema()
	assert.NoError(t, err)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS measure_tasks")
	assert.Contains(t, sql, "uq_measure_tasks_tenant_measure_no")
	assert.Contains(t, sql, "measure_task_rejections")
}
