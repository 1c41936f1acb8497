// docsync CLI entry point
//
// docsync keeps Dify knowledge bases in step with watched Google Drive files.
// Each destination profile has its own watch list and sync history, and the
// daemon pushes files that changed since their last push.
package main

import "github.com/jbctechsolutions/docsync/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
