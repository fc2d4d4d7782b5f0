package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Vigil server URL")
	flag.Parse()

	fmt.Println("Vigil CLI")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /status, /scheduler, /circadian, /notifications, /read")
	fmt.Println("Stimulus: <source> <value>   e.g.  camera 42.5")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		switch input {
		case "/status":
			fetchJSON(*server, "/api/status")
		case "/scheduler":
			fetchJSON(*server, "/api/scheduler/status")
		case "/circadian":
			fetchJSON(*server, "/api/circadian")
		case "/notifications":
			fetchNotifications(*server)
		case "/read":
			postJSON(*server, "/api/notifications/read", nil)
		default:
			sendStimulus(*server, input)
		}
	}
}

// sendStimulus parses "<source> <value>" and runs it through the filter.
func sendStimulus(server, input string) {
	fields := strings.Fields(input)
	if len(fields) != 2 {
		printError("Expected: <source> <value>")
		return
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		printError("Bad value %q: %v", fields[1], err)
		return
	}

	resp := postJSON(server, "/api/filter/check", map[string]any{
		"source": fields[0],
		"value":  value,
	})
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	var out struct {
		Notify bool   `json:"notify"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	icon := "\033[31m✗\033[0m"
	if out.Notify {
		icon = "\033[32m✓\033[0m"
	}
	fmt.Printf("%s %s\n", icon, out.Reason)
}

func fetchNotifications(server string) {
	resp, err := http.Get(server + "/api/notifications")
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		Formatted string `json:"formatted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	fmt.Println(out.Formatted)
}

func fetchJSON(server, path string) {
	resp, err := http.Get(server + path)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	printPretty(resp)
}

func postJSON(server, path string, body any) *http.Response {
	data, _ := json.Marshal(body)
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Post(server+path, "application/json", bytes.NewReader(data))
	if err != nil {
		printError("Request failed: %v", err)
		return nil
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		printError("Server error (%d): %s", resp.StatusCode, string(raw))
		return nil
	}
	return resp
}

func printPretty(resp *http.Response) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		printError("Read failed: %v", err)
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
