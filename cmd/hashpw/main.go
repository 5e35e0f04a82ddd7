// Command hashpw prints an argon2id hash for ADMIN_PASSWORD_HASH.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	httpserver "github.com/fairyhunter13/ai-chat-router/internal/adapter/httpserver"
)

func main() {
	pw := ""
	if len(os.Args) > 1 {
		pw = os.Args[1]
	} else {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		fmt.Fprintln(os.Stderr, "usage: hashpw <password> (or pipe it on stdin)")
		os.Exit(2)
	}
	h, err := httpserver.HashPassword(pw, httpserver.DefaultArgon2Params)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(h)
}
