package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// moonraker-listen is a bench tool: it subscribes to Moonraker status
// updates and prints toolhead position and print state as they change.

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	ID      *int            `json:"id,omitempty"`
}

// printerStatus is the subset of Klipper objects this tool follows.
type printerStatus struct {
	Toolhead *struct {
		Position  []float64 `json:"position"`
		HomedAxes *string   `json:"homed_axes"`
	} `json:"toolhead"`
	PrintStats *struct {
		State    *string `json:"state"`
		Filename *string `json:"filename"`
	} `json:"print_stats"`
}

func main() {
	var (
		wsURL  = flag.String("ws", "ws://127.0.0.1:7125/websocket", "Moonraker websocket URL")
		method = flag.String("method", "", "Send a single JSON-RPC method and exit (e.g. 'printer.info')")
	)
	flag.Parse()

	// Parse websocket URL
	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// Keep the connection alive
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	// Single request mode
	if *method != "" {
		if err := send(conn, &writeMu, 1, *method, nil); err != nil {
			log.Fatalf("send failed: %v", err)
		}
		for {
			var msg rpcMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.Fatalf("failed to read response: %v", err)
			}
			if msg.ID == nil || *msg.ID != 1 {
				continue // notification
			}
			printJSON(msg.Result, msg.Error)
			return
		}
	}

	subscribe := map[string]any{
		"objects": map[string]any{
			"toolhead":    []string{"position", "homed_axes"},
			"print_stats": []string{"state", "filename"},
		},
	}
	if err := send(conn, &writeMu, 1, "printer.objects.subscribe", subscribe); err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	log.Printf("connected! (press Ctrl+C to exit)")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg rpcMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			handleMessage(msg)
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

func send(conn *websocket.Conn, mu *sync.Mutex, id int, method string, params any) error {
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": id}
	if params != nil {
		req["params"] = params
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteJSON(req)
}

// handleMessage prints the subscription snapshot and every status update.
func handleMessage(msg rpcMessage) {
	switch {
	case msg.ID != nil:
		if len(msg.Error) > 0 {
			printJSON(nil, msg.Error)
			return
		}
		var res struct {
			Status printerStatus `json:"status"`
		}
		if err := json.Unmarshal(msg.Result, &res); err == nil {
			printStatus("[INITIAL]", res.Status)
		}

	case msg.Method == "notify_status_update":
		// params: [status, eventtime]
		var params []json.RawMessage
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params) == 0 {
			return
		}
		var st printerStatus
		if err := json.Unmarshal(params[0], &st); err != nil {
			return
		}
		printStatus("[UPDATE]", st)

	case msg.Method == "notify_klippy_disconnected", msg.Method == "notify_klippy_ready", msg.Method == "notify_klippy_shutdown":
		fmt.Printf("[KLIPPY] %s\n", msg.Method)
	}
}

func printStatus(tag string, st printerStatus) {
	if th := st.Toolhead; th != nil {
		if len(th.Position) >= 3 {
			fmt.Printf("%s position X=%.2f Y=%.2f Z=%.2f\n", tag, th.Position[0], th.Position[1], th.Position[2])
		}
		if th.HomedAxes != nil {
			fmt.Printf("%s homed axes: %q\n", tag, *th.HomedAxes)
		}
	}
	if ps := st.PrintStats; ps != nil {
		if ps.State != nil {
			fmt.Printf("%s print state: %s\n", tag, *ps.State)
		}
		if ps.Filename != nil && *ps.Filename != "" {
			fmt.Printf("%s file: %s\n", tag, *ps.Filename)
		}
	}
}

func printJSON(result, rpcErr json.RawMessage) {
	raw := result
	label := "[RESULT]"
	if len(rpcErr) > 0 {
		raw = rpcErr
		label = "[ERROR]"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Printf("%s %s\n", label, string(raw))
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s\n%s\n", label, string(pretty))
}
