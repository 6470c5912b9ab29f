package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const defaultSocketPath = "/tmp/printerpanel.sock"

// dialTimeout bounds connect and response time for a single request.
const dialTimeout = 5 * time.Second

// Envelope mirrors the daemon's IPC wire format. It is duplicated here so
// panelctl stays a standalone binary.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse mirrors the daemon's response. The state is kept raw and
// printed as-is.
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

var buttonActions = []string{
	"home_x", "home_y", "home_z",
	"jog_x_plus", "jog_x_minus",
	"jog_y_plus", "jog_y_minus",
	"jog_z_plus", "jog_z_minus",
	"stop",
}

func main() {
	socketPath := defaultSocketPath
	args := os.Args[1:]

	// Parse global options
	for len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: -socket requires a path")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "turn":
		err = runTurn(socketPath, args[1:])

	case "press":
		_, err = send(socketPath, Envelope{Type: "encoder_press"})

	case "button":
		err = runButton(socketPath, args[1:])

	case "state":
		err = runState(socketPath)

	case "help", "-h", "--help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTurn(socketPath string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("turn requires a direction (+1 or -1) and an optional count")
	}

	var direction int
	switch args[0] {
	case "+1", "1", "cw":
		direction = 1
	case "-1", "ccw":
		direction = -1
	default:
		return fmt.Errorf("invalid direction %q (want +1 or -1)", args[0])
	}

	count := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[1])
		}
		count = n
	}

	data, err := json.Marshal(struct {
		Direction int `json:"direction"`
	}{direction})
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	for i := 0; i < count; i++ {
		if _, err := send(socketPath, Envelope{Type: "encoder_turn", Data: data}); err != nil {
			return err
		}
	}
	fmt.Println("ok")
	return nil
}

func runButton(socketPath string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("button requires an action")
	}
	if !knownAction(args[0]) {
		return fmt.Errorf("unknown action %q", args[0])
	}

	data, err := json.Marshal(struct {
		Action string `json:"action"`
	}{args[0]})
	if err != nil {
		return fmt.Errorf("marshal button: %w", err)
	}

	if _, err := send(socketPath, Envelope{Type: "button", Data: data}); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runState(socketPath string) error {
	resp, err := send(socketPath, Envelope{Type: "get_state"})
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, resp.State, "", "  "); err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	fmt.Println(out.String())
	return nil
}

func knownAction(s string) bool {
	for _, a := range buttonActions {
		if a == s {
			return true
		}
	}
	return false
}

// send writes one envelope and reads one response.
func send(socketPath string, env Envelope) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))

	data, err := json.Marshal(env)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	// Send request (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}

	return response, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `panelctl - Drive the printerpanel daemon via IPC

Usage:
  panelctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  turn <+1|-1> [count]    Simulate encoder detents (clockwise is +1)
  press                   Simulate an encoder switch press
  button <action>         Simulate a panel button
  state                   Print the daemon state as JSON
  help, -h, --help        Show this help message

Button actions:
  home_x home_y home_z
  jog_x_plus jog_x_minus jog_y_plus jog_y_minus jog_z_plus jog_z_minus
  stop

Examples:
  panelctl turn +1 4
  panelctl button jog_z_minus
  panelctl -socket /run/printerpanel.sock state
`, defaultSocketPath)
}
