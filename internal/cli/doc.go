// Package cli provides command-line interface setup and configuration
// for meaningbot. It handles flag parsing, root command creation, and
// configuration management using cobra and viper.
package cli
