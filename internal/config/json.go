package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/tidwall/jsonc"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell an absent key apart from a zero value.
type JSONConfig struct {
	Create *struct {
		Sources []string `json:"sources"`
		Output  *string  `json:"output"`
		Level   *int     `json:"level"`
		Rclone  *string  `json:"rclone"`
		Force   *bool    `json:"force"`
	} `json:"create"`

	Restore *struct {
		Backup *string `json:"backup"`
		Output *string `json:"output"`
		Force  *bool   `json:"force"`
	} `json:"restore"`

	S3 *struct {
		Region          *string `json:"region"`
		Endpoint        *string `json:"endpoint"`
		AccessKeyID     *string `json:"access_key_id"`
		SecretAccessKey *string `json:"secret_access_key"`
		UsePathStyle    *bool   `json:"use_path_style"`
	} `json:"s3"`

	HistoryDB *string `json:"history_db"`
}

// parseJSON overlays cfg with the values present in the file at path.
// Unknown keys are rejected so typos do not go unnoticed.
func parseJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config file: %w", common.ErrConfiguration, err)
	}

	var jc JSONConfig
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&jc); err != nil {
		return fmt.Errorf("%w: parse config file %s: %w", common.ErrConfiguration, path, err)
	}

	if c := jc.Create; c != nil {
		if c.Sources != nil {
			cfg.Create.Sources = c.Sources
		}
		setString(&cfg.Create.Output, c.Output)
		setString(&cfg.Create.RcloneDest, c.Rclone)
		if c.Level != nil {
			cfg.Create.Level = *c.Level
		}
		setBool(&cfg.Create.Force, c.Force)
	}

	if r := jc.Restore; r != nil {
		setString(&cfg.Restore.Backup, r.Backup)
		setString(&cfg.Restore.Output, r.Output)
		setBool(&cfg.Restore.Force, r.Force)
	}

	if s := jc.S3; s != nil {
		setString(&cfg.S3.Region, s.Region)
		setString(&cfg.S3.Endpoint, s.Endpoint)
		setString(&cfg.S3.AccessKeyID, s.AccessKeyID)
		setString(&cfg.S3.SecretAccessKey, s.SecretAccessKey)
		setBool(&cfg.S3.UsePathStyle, s.UsePathStyle)
	}

	setString(&cfg.HistoryDB, jc.HistoryDB)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
