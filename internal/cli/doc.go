// Package cli implements the sealback command line.
//
// Commands:
//
//	create   [sources...]  build an encrypted archive
//	restore  [archive]     decrypt and extract an archive
//	inspect  <archive>     print the unencrypted header
//	history                list recorded backups and restores
//	version                print build information
//
// Settings come from defaults, then the file named by -c/--config-file,
// then flags. The password is taken from --password, then the
// SEALBACK_PASSWORD environment variable, then a terminal prompt.
//
// App.Run returns the process exit code; see ExitCode for the mapping from
// error categories.
package cli
