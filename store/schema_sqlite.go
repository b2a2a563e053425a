package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS sensors (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    sensor_type TEXT NOT NULL DEFAULT '',
    microcontroller_type TEXT NOT NULL DEFAULT '',
    manufacturer TEXT NOT NULL DEFAULT '',
    mqtt_topic  TEXT UNIQUE,
    status      TEXT NOT NULL DEFAULT 'PENDING',
    last_seen   TEXT,
    calibration_date TEXT NOT NULL DEFAULT '',
    install_date TEXT NOT NULL DEFAULT '',
    measurement_frequency TEXT NOT NULL DEFAULT '',
    firmware_version TEXT NOT NULL DEFAULT '',
    mac_address TEXT UNIQUE,
    ip_address  TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_sensors_topic ON sensors(mqtt_topic) WHERE mqtt_topic IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_sensors_mac ON sensors(mac_address) WHERE mac_address IS NOT NULL;

CREATE TABLE IF NOT EXISTS sensor_fields (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor_id   INTEGER NOT NULL REFERENCES sensors(id) ON DELETE CASCADE,
    field_name  TEXT NOT NULL,
    unit        TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    UNIQUE(sensor_id, field_name)
);

CREATE TABLE IF NOT EXISTS sensor_measurements (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor_id   INTEGER NOT NULL REFERENCES sensors(id) ON DELETE CASCADE,
    field_id    INTEGER NOT NULL REFERENCES sensor_fields(id) ON DELETE CASCADE,
    value       REAL NOT NULL,
    recorded_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_measurements_sensor ON sensor_measurements(sensor_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS sensor_firmware_files (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor_id   INTEGER NOT NULL REFERENCES sensors(id) ON DELETE CASCADE,
    version     TEXT NOT NULL,
    environment TEXT NOT NULL DEFAULT 'development',
    uploaded_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    file_size_bytes INTEGER NOT NULL DEFAULT 0,
    data        BLOB NOT NULL,
    deleted_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_firmware_sensor ON sensor_firmware_files(sensor_id, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_firmware_deleted ON sensor_firmware_files(deleted_at) WHERE deleted_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS export_outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_export_outbox_pending ON export_outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
