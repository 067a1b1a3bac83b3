// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the corresponding Config fields.
const (
	EnvTmpDir    = "BEDPIPE_TMPDIR"
	EnvBedtools  = "BEDPIPE_BEDTOOLS"
	EnvGenomeDir = "BEDPIPE_GENOME_DIR"
)

// Config configures a Session.
type Config struct {
	// TmpDir holds the temp files of the session.  Empty means os.TempDir().
	TmpDir string `yaml:"tmpdir"`
	// Bedtools is the bedtools executable.  Empty means "bedtools" in PATH.
	Bedtools string `yaml:"bedtools"`
	// GenomeDir holds genome-size tables named <assembly>.genome.
	GenomeDir string `yaml:"genome_dir"`
	// Genomes are genome-size tables given inline: assembly name, then
	// chromosome name to length.
	Genomes map[string]map[string]int64 `yaml:"genomes"`
}

// LoadConfig reads a YAML config file, then applies the BEDPIPE_*
// environment overrides.  A ".env" file next to the config, if any, is loaded
// into the environment first; variables already set win.  An empty path
// yields the defaults plus the environment overrides.
func LoadConfig(ctx context.Context, path string) (Config, error) {
	var cfg Config
	if path != "" {
		envPath := filepath.Join(filepath.Dir(path), ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return cfg, errors.E(errors.Precondition, "load", envPath, err)
			}
		}
		data, err := readFile(ctx, path)
		if err != nil {
			return cfg, errors.E(errors.Precondition, "read config", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.E(errors.Precondition, "parse config", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv(EnvTmpDir); v != "" {
		cfg.TmpDir = v
	}
	if v := os.Getenv(EnvBedtools); v != "" {
		cfg.Bedtools = v
	}
	if v := os.Getenv(EnvGenomeDir); v != "" {
		cfg.GenomeDir = v
	}
}

func readFile(ctx context.Context, path string) (data []byte, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return ioutil.ReadAll(in.Reader(ctx))
}
