// Command hashsecret prints the bcrypt hash of an admin secret for use
// as ADMIN_SECRET_HASH.
package main

import (
	"flag"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/clubrun/run-attendance/internal/utils"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("usage: hashsecret [-cost N] <secret>")
	}
	hash, err := utils.HashAdminSecret(flag.Arg(0), *cost)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
