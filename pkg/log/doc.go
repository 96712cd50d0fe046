/*
Package log provides structured logging for Flapjack using zerolog.

A single package-level Logger is initialized once via Init. Components
derive child loggers carrying their own fields (WithComponent,
WithCheckID, WithAlertID, WithMedium) from that package-level Logger
inside their constructors; loggers are not passed in as constructor
arguments, and some code logs through the package-level helpers
directly.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	checkLog := log.WithCheckID(checkID)
	checkLog.Info().Str("condition", "critical").Msg("transition recorded")
*/
package log
