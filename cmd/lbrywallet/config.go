// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	"github.com/shauser/lbry-sdk/internal/cfgutil"
	"github.com/shauser/lbry-sdk/wallet"
)

const (
	defaultConfigFilename = "lbrywallet.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "lbrywallet.log"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultAccountName    = "default"
	defaultCoinType       = 140

	ledgerDBName = "ledger.db"
	seedFileName = "seed.txt"
)

var (
	appHomeDir        = btcutil.AppDataDir("lbrywallet", false)
	defaultConfigFile = filepath.Join(appHomeDir, defaultConfigFilename)
	defaultDataDir    = appHomeDir
	defaultLogDir     = filepath.Join(appHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	Create      bool   `long:"create" description:"Create a new seed if none exists"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the seed and ledger snapshot"`
	LogDir      string `long:"logdir" description:"Directory to log output."`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	MaxLogFiles int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogSize  int    `long:"maxlogfilesize" description:"Maximum logfile size in KB"`

	// Network
	SimNet bool `long:"simnet" description:"Use the simulation test network instead of regtest"`

	// Accounts
	Accounts   []string `short:"a" long:"account" description:"Name of an account to load; may be repeated"`
	CoinType   uint32   `long:"cointype" description:"BIP0044 coin type accounts are derived under"`
	Passphrase string   `long:"seedpassphrase" description:"Optional BIP0039 passphrase of the seed" default-mask:"-"`
	Rescan     bool     `long:"rescan" description:"Rescan every account on startup"`

	// Development chain
	AutoMine time.Duration      `long:"automine" description:"Mine a block at this interval while transactions are pending (0 to disable)"`
	Fund     *cfgutil.AmountFlag `long:"fund" description:"Fund the first account with this amount on startup"`

	// Ledger tunables
	Ledger *wallet.Config `group:"Ledger Options"`

	params *chaincfg.Params
}

// version returns the application version.
func version() string {
	return "0.1.0"
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}

		setLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains " +
				"an invalid subsystem/level pair [%v]", logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsytems %v", subsysID,
				supportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile:  defaultConfigFile,
		DataDir:     defaultDataDir,
		LogDir:      defaultLogDir,
		DebugLevel:  defaultLogLevel,
		MaxLogFiles: defaultMaxLogFiles,
		MaxLogSize:  defaultMaxLogFileSize,
		CoinType:    defaultCoinType,
		Fund:        cfgutil.NewAmountFlag(0),
		Ledger:      wallet.DefaultConfig(),
	}

	// A config file in the current directory takes precedence.
	exists, err := cfgutil.FileExists(defaultConfigFilename)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if exists {
		cfg.ConfigFile = defaultConfigFilename
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err = preParser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cfgutil.CleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	cfg.params = &chaincfg.RegressionNetParams
	if cfg.SimNet {
		cfg.params = &chaincfg.SimNetParams
	}
	cfg.Ledger.Params = cfg.params

	if len(cfg.Accounts) == 0 {
		cfg.Accounts = []string{defaultAccountName}
	}
	seen := make(map[string]struct{}, len(cfg.Accounts))
	for _, name := range cfg.Accounts {
		if _, ok := seen[name]; ok {
			err := fmt.Errorf("loadConfig: account %q listed twice",
				name)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
		seen[name] = struct{}{}
	}

	if err := cfg.Ledger.Validate(); err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Namespace the data and log directories per network.
	cfg.DataDir = filepath.Join(
		cfgutil.CleanAndExpandPath(cfg.DataDir), cfg.params.Name,
	)
	cfg.LogDir = filepath.Join(
		cfgutil.CleanAndExpandPath(cfg.LogDir), cfg.params.Name,
	)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename), cfg.MaxLogSize,
		cfg.MaxLogFiles,
	)

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds. This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
