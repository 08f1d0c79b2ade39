package main

import (
	"os"

	"github.com/x4pay/x402-ble-go/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
