package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danmuck/isoctl/internal/protocol"
)

func run(cfg clientConfig) error {
	if cfg.Events {
		return tailEvents(cfg)
	}
	return sendRequest(cfg)
}

func sendRequest(cfg clientConfig) error {
	req := protocol.Request{
		Method:  cfg.Method,
		Params:  cfg.Params,
		ID:      json.RawMessage(`"inspectctl-1"`),
		Isolate: cfg.Isolate,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post("http://"+cfg.Addr+"/rpc", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return printJSON(payload)
}

func tailEvents(cfg clientConfig) error {
	u := url.URL{Scheme: "ws", Host: cfg.Addr, Path: "/events"}
	if cfg.Isolate != "" {
		u.RawQuery = url.Values{"isolate": {cfg.Isolate}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("event stream dial: %w", err)
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("event stream closed: %w", err)
		}
		if err := printJSON(msg); err != nil {
			return err
		}
	}
}

func printJSON(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Not JSON; print as-is.
		fmt.Println(string(raw))
		return nil
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}
