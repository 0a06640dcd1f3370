package toll

import (
	"path/filepath"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/lndclient"
	"github.com/lightninglabs/toll/client"
	"github.com/lightninglabs/toll/wallet"
	"github.com/lightningnetwork/lnd/build"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "TOLL"

var (
	logWriter = build.NewRotatingLogWriter()

	logMgr = build.NewSubLoggerManager(build.NewDefaultLogHandlers(
		build.DefaultLogConfig(), logWriter,
	)...)

	log = build.NewSubLogger(Subsystem, genSubLogger)
)

func init() {
	setSubLogger(Subsystem, log, nil)
	addSubLogger(wallet.Subsystem, func(l btclog.Logger) {
		wallet.UseLogger(l)
	})
	addSubLogger(client.Subsystem, func(l btclog.Logger) {
		client.UseLogger(l)
	})
	addSubLogger("LNDC", lndclient.UseLogger)
}

// genSubLogger creates a new sublogger from the root sublogger manager.
func genSubLogger(subsystem string) btclog.Logger {
	return logMgr.GenSubLogger(subsystem, func() {})
}

// addSubLogger is a helper method to conveniently create and register the
// logger of a sub system.
func addSubLogger(subsystem string, useLogger func(btclog.Logger)) {
	logger := build.NewSubLogger(subsystem, genSubLogger)
	setSubLogger(subsystem, logger, useLogger)
}

// setSubLogger is a helper method to conveniently register the logger of a sub
// system.
func setSubLogger(subsystem string, logger btclog.Logger,
	useLogger func(btclog.Logger)) {

	logMgr.RegisterSubLogger(subsystem, logger)
	if useLogger != nil {
		useLogger(logger)
	}
}

// SetupLogging initializes the log file rotator in the given directory and
// sets the debug level for all registered subsystems.
func SetupLogging(logDir, debugLevel string) error {
	err := logWriter.InitLogRotator(
		&build.FileLoggerConfig{
			LoggerConfig:   &build.LoggerConfig{},
			Compressor:     build.Gzip,
			MaxLogFileSize: 10,
			MaxLogFiles:    3,
		},
		filepath.Join(logDir, "tollgate.log"),
	)
	if err != nil {
		return err
	}

	return build.ParseAndSetDebugLevels(debugLevel, logMgr)
}

// CloseLogging flushes and closes the log file rotator.
func CloseLogging() error {
	return logWriter.Close()
}
