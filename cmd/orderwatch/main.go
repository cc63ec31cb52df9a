package main

import (
	"os"

	"github.com/patrickjm/orderwatch/internal/app"
)

func main() {
	os.Exit(app.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
