// SPDX-License-Identifier: MPL-2.0

package main

import cmd "buildlog-cli/cmd/buildlog"

func main() {
	cmd.Execute()
}
