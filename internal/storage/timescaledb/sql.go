package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS state_history (
    time timestamp WITH TIME ZONE NOT NULL,
    state_id text NOT NULL,
    val double precision NULL,
    text_val text NULL,
    ack boolean NOT NULL DEFAULT true
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('state_history', 'time', if_not_exists => true);`

const createIndexesSQL = `CREATE INDEX IF NOT EXISTS state_history_state_id_time_idx ON state_history (state_id, time DESC);`

const create1hViewSQL = `CREATE MATERIALIZED VIEW IF NOT EXISTS state_history_1h
WITH (timescaledb.continuous) AS
SELECT
    time_bucket('1 hour', time) AS bucket,
    state_id,
    avg(val) AS avg_val,
    min(val) AS min_val,
    max(val) AS max_val,
    last(val, time) AS last_val
FROM state_history
WHERE val IS NOT NULL
GROUP BY bucket, state_id
WITH NO DATA;`

const dropDailyRainViewSQL = `DROP VIEW IF EXISTS daily_rainfall;`

// The tracker resets rst at the local day boundary, so the largest value of
// a day is that day's total.
const createDailyRainViewSQL = `CREATE VIEW daily_rainfall AS
SELECT
    date_trunc('day', time) AS day,
    split_part(state_id, '.', 2) AS sensor,
    max(val) AS total
FROM state_history
WHERE state_id LIKE 'mobilealerts.%.rst'
GROUP BY day, sensor;`

const addAggregationPolicy1hSQL = `SELECT add_continuous_aggregate_policy('state_history_1h', INTERVAL '1 month', INTERVAL '1 hour', INTERVAL '1 hour', if_not_exists => true);`

const addRetentionPolicySQL = `SELECT add_retention_policy('state_history', INTERVAL '365 days', if_not_exists => true);`
