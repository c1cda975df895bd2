// Command pagectl drives the storage stack end to end: creating and
// populating a bloom index, replaying its WAL, and managing the access
// method catalog, all without a surrounding SQL engine.
package main

import (
	"github.com/sirupsen/logrus"
)

func main() {
	cmd, err := newRootCmd()
	if err != nil {
		logrus.Panic(err)
	}
	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
