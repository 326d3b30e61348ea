package main

import (
	"encoding/json"
	"flag"
	"os"
	"path"
	"strings"

	"github.com/omeid/uconfig"
	"github.com/omeid/uconfig/plugins"
	"github.com/omeid/uconfig/plugins/file"
	"github.com/rs/zerolog/log"
)

// configFilename is the filename of the config file automatically loaded.
var configFilename = "config.json"

type config struct {
	Dir string // This will default to "", NOT the default dir value set via the flag package

	URL         string `default:"" env:"CHAIN_URL"`
	BlockHeight uint32 `default:"0" env:"BLOCK_HEIGHT"`

	QueryService QueryServiceConfig
	Metrics      struct {
		Port string `default:"9090"`
	}
	Log struct {
		Human bool `default:"false"`
		Debug bool `default:"false"`
	}

	Follower FollowerConfig
	Indexer  IndexerConfig
}

// QueryServiceConfig contains configuration for the query/subscription
// server.
type QueryServiceConfig struct {
	Port string `default:"8545"`
}

// FollowerConfig contains configuration for the chain follower.
type FollowerConfig struct {
	MinBlockDepth      int    `default:"5"`
	MaxBlocksFetchSize int    `default:"10000"`
	ChainAPIBackoff    string `default:"15s"`
	HeadPollFreq       string `default:"6s"`
}

// IndexerConfig contains configuration for the indexing daemon.
type IndexerConfig struct {
	BlockFailedExecutionBackoff string `default:"10s"`
	CaughtUpDepth               uint32 `default:"8"`
}

func setupConfig() (*config, string) {
	flagDirPath := flag.String("dir", "${HOME}/.chainindex", "Directory where the configuration and index DB exist")
	flag.Parse()
	if flagDirPath == nil {
		log.Fatal().Msg("--dir is null")
		return nil, "" // Helping the linter know the next line is safe.
	}
	dirPath := os.ExpandEnv(*flagDirPath)

	_ = os.MkdirAll(dirPath, 0o755)

	var plugins []plugins.Plugin
	fullPath := path.Join(dirPath, configFilename)
	configFileBytes, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		log.Info().Str("config_file_path", fullPath).Msg("config file not found")
	} else if err != nil {
		log.Fatal().Str("config_file_path", fullPath).Err(err).Msg("opening config file")
	} else {
		fileStr := os.ExpandEnv(string(configFileBytes))
		plugins = append(plugins, file.NewReader(strings.NewReader(fileStr), json.Unmarshal))
	}

	conf := &config{}
	c, err := uconfig.Classic(&conf, file.Files{}, plugins...)
	if err != nil {
		c.Usage()
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if conf.URL == "" {
		log.Fatal().Msg("--url is required")
	}

	return conf, dirPath
}
