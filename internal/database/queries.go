package database

// Placeholders are numbered and appear in ascending order so the same text
// binds positionally on both sqlite3 and postgres.

// Migration bookkeeping
const (
	createMigrationsTableQuery = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`

	countMigrationQuery = `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`

	insertMigrationQuery = `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`
)

// Gateway and mailbox queries
const (
	upsertGatewayQuery = `
		INSERT INTO message_gateways (name, url, alive)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET url = excluded.url
	`

	selectGatewayQuery = `
		SELECT name, url, alive, alive_changed_at
		FROM message_gateways
		WHERE name = $1
	`

	selectGatewaysQuery = `
		SELECT name, url, alive, alive_changed_at
		FROM message_gateways
		ORDER BY name
	`

	updateGatewayAliveQuery = `
		UPDATE message_gateways
		SET alive = $1, alive_changed_at = $2
		WHERE name = $3 AND alive <> $4
	`

	upsertMailboxQuery = `
		INSERT INTO mailboxes (access_id, password, gateway_name, description, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (access_id) DO UPDATE SET
			password = excluded.password,
			gateway_name = excluded.gateway_name,
			description = excluded.description,
			enabled = excluded.enabled
	`

	selectMailboxQuery = `
		SELECT access_id, password, gateway_name, description, enabled
		FROM mailboxes
		WHERE access_id = $1
	`

	selectEnabledMailboxesQuery = `
		SELECT access_id, password, gateway_name, description, enabled
		FROM mailboxes
		WHERE enabled = $1
		ORDER BY access_id
	`

	selectMailboxForMobileQuery = `
		SELECT mb.access_id, mb.password, mb.gateway_name, mb.description, mb.enabled
		FROM mobiles m
		JOIN mailboxes mb ON mb.access_id = m.access_id
		WHERE m.mobile_id = $1
	`
)

// Mobile queries
const (
	selectMobileQuery = `
		SELECT mobile_id, access_id, last_message_received, last_satellite_region,
		       wakeup_period_sec, last_registration, modem_hw_version, modem_sw_version,
		       modem_product_id, location_latitude, location_longitude, location_altitude,
		       location_speed, location_heading, location_time, broadcast_ids, updated_at
		FROM mobiles
		WHERE mobile_id = $1
	`

	insertMobileIfAbsentQuery = `
		INSERT INTO mobiles (mobile_id, updated_at)
		VALUES ($1, $2)
		ON CONFLICT (mobile_id) DO NOTHING
	`
)

// Message queries
const (
	insertOriginatedIfAbsentQuery = `
		INSERT INTO raw_messages (
			category, message_id, access_id, mobile_id, sin, min,
			message_utc, receive_utc, region_name, ota_message_size,
			raw_payload, payload_json, ttl_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (category, message_id) DO NOTHING
	`

	insertTerminatedIfAbsentQuery = `
		INSERT INTO raw_messages (
			category, message_id, access_id, mobile_id, sin, min,
			user_message_id, submit_utc, state, state_utc, is_closed,
			error_id, error_desc, ota_message_size, raw_payload, payload_json,
			ttl_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (category, message_id) DO NOTHING
	`

	selectOriginatedQuery = `
		SELECT message_id, access_id, mobile_id, sin, min, message_utc, receive_utc,
		       region_name, ota_message_size, raw_payload, payload_json
		FROM raw_messages
		WHERE category = $1 AND message_id = $2
	`

	selectTerminatedQuery = `
		SELECT message_id, access_id, mobile_id, sin, min, user_message_id, submit_utc,
		       state, state_utc, is_closed, error_id, error_desc, reference_number,
		       ota_message_size, raw_payload, payload_json
		FROM raw_messages
		WHERE category = $1 AND message_id = $2
	`

	selectTerminatedStateQuery = `
		SELECT state, is_closed
		FROM raw_messages
		WHERE category = $1 AND message_id = $2
	`

	mergeTerminatedStatusQuery = `
		UPDATE raw_messages
		SET state = $1,
		    state_utc = COALESCE($2, state_utc),
		    error_id = $3,
		    error_desc = $4,
		    reference_number = COALESCE($5, reference_number),
		    is_closed = (is_closed OR $6),
		    updated_at = $7
		WHERE category = $8 AND message_id = $9 AND state IS DISTINCT FROM $1
	`

	selectOpenTerminatedIDsQuery = `
		SELECT message_id
		FROM raw_messages
		WHERE category = $1 AND access_id = $2 AND is_closed = $3
		ORDER BY message_id
	`

	countOpenTerminatedBeforeQuery = `
		SELECT COUNT(*)
		FROM raw_messages
		WHERE category = $1 AND is_closed = $2 AND submit_utc < $3
	`
)

// Call log queries
const (
	insertCallLogQuery = `
		INSERT INTO api_call_logs (
			call_time, access_id, operation, gateway_url, cursor_id, cursor_utc,
			success, error_id, error_desc, next_start_id, next_start_utc, more,
			message_count, ttl_days
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	selectLatestSuccessfulCallLogQuery = `
		SELECT id, call_time, access_id, operation, gateway_url, cursor_id, cursor_utc,
		       success, error_id, error_desc, next_start_id, next_start_utc, more, message_count
		FROM api_call_logs
		WHERE access_id = $1 AND operation = $2 AND success = $3
		ORDER BY id DESC
		LIMIT 1
	`

	selectCallLogsQuery = `
		SELECT id, call_time, access_id, operation, gateway_url, cursor_id, cursor_utc,
		       success, error_id, error_desc, next_start_id, next_start_utc, more, message_count
		FROM api_call_logs
		WHERE access_id = $1 AND operation = $2
		ORDER BY id ASC
	`

	countCallLogsQuery = `SELECT COUNT(*) FROM api_call_logs`

	trimCallLogsQuery = `
		DELETE FROM api_call_logs
		WHERE id NOT IN (
			SELECT id FROM api_call_logs ORDER BY id DESC LIMIT $1
		)
	`
)
