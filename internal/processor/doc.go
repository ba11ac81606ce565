// Package processor contains the application logic behind the meaningbot
// commands. It builds the engine and its collaborators (storage backend,
// fallback translator, journal, channel links) from the configuration,
// drives single messages and message batches through the engine, and
// renders results and learned meanings for the terminal.
package processor
