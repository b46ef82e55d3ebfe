package main

import (
    "os"

    "github.com/amirimatin/go-clustermon/pkg/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
    if err := cli.NewRootCmd(version).Execute(); err != nil {
        os.Exit(1)
    }
}
