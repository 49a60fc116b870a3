package persistence

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_AuditTimestampsUseClockTime(t *testing.T) {
	raw, err := migrationFS.ReadFile("migrations/00001_issue_tables.sql")
	require.NoError(t, err)
	sql := string(raw)

	for _, table := range []string{"issue_activities", "issue_escalations"} {
		body := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS ` + table + ` \((.*?)\n\);`).FindStringSubmatch(sql)
		require.Len(t, body, 2, table)
		assert.Regexp(t, `created_at\s+TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp\(\)`, body[1], table)
		assert.NotContains(t, body[1], "NOW()", table)
	}
	assert.Contains(t, sql, "ON issue_activities (issue_id, id DESC)")
}

func TestNewMigrator_RequiresPool(t *testing.T) {
	_, err := NewMigrator(nil, nil)
	assert.Error(t, err)
}
