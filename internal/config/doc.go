// Package config loads runtime configuration for the sealback CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJSON) selected via -c or --config-file.
//     Comments and trailing commas are allowed.
//  3. Command-line flags (see parseFlags). Only flags that were actually
//     given override earlier values.
//
// # JSON schema
//
//	{
//	  "create":  {"sources": ["docs", "notes.txt"], "output": "/backups", "level": 9, "rclone": "remote:backups"},
//	  "restore": {"backup": "/backups/latest.seal", "output": "restored"},
//	  "s3":      {"region": "eu-central-1", "endpoint": "http://localhost:9000",
//	              "access_key_id": "minio", "secret_access_key": "minio123", "use_path_style": true},
//	  "history_db": "/var/lib/sealback/history.db"
//	}
//
// Passwords are never read from the file.
package config
