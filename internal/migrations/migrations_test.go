package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	for _, driver := range []string{"sqlite3", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			all, err := Load(driver)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, 1, all[0].Version)
			assert.Equal(t, "initial_schema", all[0].Name)
			assert.Equal(t, 2, all[1].Version)
			for _, table := range []string{"message_gateways", "mailboxes", "mobiles", "raw_messages", "api_call_logs"} {
				assert.Contains(t, all[0].SQL, "CREATE TABLE IF NOT EXISTS "+table)
			}
			assert.Contains(t, all[0].SQL, "UNIQUE (category, message_id)")
		})
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	_, err := Load("mysql")
	assert.Error(t, err)
}

func TestGetInitialSchema(t *testing.T) {
	schema, err := GetInitialSchema("postgres")
	require.NoError(t, err)
	assert.Contains(t, schema, "BIGSERIAL")
}
