// Package logging builds named loggers on top of zap from the "logger"
// section of the settings. Each logger may write to the console, to a plain
// text file and to a tab-separated file under a per-day session directory,
// every sink filtering records by its own threshold.
//
// Loggers are handed out as Adapters: they turn errors into multi-line
// reports and indent every line by the depth of the currently open scopes,
// which makes nested call trees readable in the output:
//
//	log, err := factory.Default()
//	scope := log.Enter()
//	defer scope.Close()
//	log.Info("inside")
package logging
