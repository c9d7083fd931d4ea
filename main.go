package main

import (
	// Registers the "odps" database/sql driver used by driver: odps jobs
	_ "github.com/aliyun/aliyun-odps-go-sdk/sqldriver"

	"github.com/godispatch/sqlbatch/cmd"
)

func main() {
	cmd.Execute()
}
