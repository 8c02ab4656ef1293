// -----------------------------------------------------------------------
// Last Modified: Thursday, 30th July 2026 9:00:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/speccompiler/cmd/speccompiler/commands"
	"github.com/ternarybob/speccompiler/internal/common"
)

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
