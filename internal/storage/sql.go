package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      receiver,
                      source,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    receiver,
    source,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    receiver,
    source,
    config
FROM sessions
ORDER BY start_time`

	insertVerdictSQL = `
INSERT INTO verdicts (session_id,
                      timestamp,
                      jamming_detected,
                      severity,
                      jamming_type,
                      detection_method,
                      confidence,
                      satellites,
                      tracked_satellites,
                      avg_cn0,
                      cn0_std,
                      cn0_variation,
                      avg_doppler,
                      doppler_std,
                      doppler_variation,
                      correlation)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectVerdictsSQL = `
SELECT
    id,
    session_id,
    timestamp,
    jamming_detected,
    severity,
    jamming_type,
    detection_method,
    confidence,
    satellites,
    tracked_satellites,
    avg_cn0,
    cn0_std,
    cn0_variation,
    avg_doppler,
    doppler_std,
    doppler_variation,
    correlation
FROM verdicts
WHERE
    session_id = ?
ORDER BY timestamp`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_verdicts_session_time ON verdicts (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_detections_session ON detections (session_id)`
)

//go:embed schema.sql
var initSchemaSQL string
