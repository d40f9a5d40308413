package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func getCmd(name, path string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	get(*baseURL, path)
}

// roomStateCmd prints the room state the server last cached in redis.
func roomStateCmd(args []string) {
	fs := flag.NewFlagSet("room-state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	roomID := fs.String("room", "", "room id")
	_ = fs.Parse(args)
	if strings.TrimSpace(*roomID) == "" {
		fmt.Fprintln(os.Stderr, "missing -room")
		os.Exit(2)
	}
	get(*baseURL, "/rooms/"+url.PathEscape(strings.TrimSpace(*roomID))+"/state")
}

func get(baseURL, path string) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
