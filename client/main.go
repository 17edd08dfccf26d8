// Command client is a small websocket client for poking at a running server.
// Lines typed on stdin are sent as events: the first word is the event name and
// the rest of the line its JSON payload, for example
//
//	startGame "lobby"
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/wfunc/thegame/network"
)

func main() {
	cmd := &cli.Command{
		Name:  "client",
		Usage: "connect to a game server and print every event it sends",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "localhost:4001", Usage: "server host:port"},
			&cli.StringFlag{Name: "name", Value: "player", Usage: "player name to join the server with"},
			&cli.StringFlag{Name: "room", Usage: "room to join after connecting"},
			&cli.BoolFlag{Name: "create", Usage: "create the room before joining it"},
			&cli.BoolFlag{Name: "spectate", Usage: "join the room as a spectator"},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func send(c *websocket.Conn, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func run(ctx context.Context, cmd *cli.Command) error {
	u := url.URL{Scheme: "ws", Host: cmd.String("addr"), Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			msg, err := network.Decode(data)
			if err != nil {
				log.Printf("Received invalid frame: %v", err)
				continue
			}
			log.Printf("<- %s %s", msg.Event, string(msg.Data))
		}
	}()

	name := cmd.String("name")
	if err := send(c, network.EventJoinServer, name); err != nil {
		return err
	}

	if roomName := cmd.String("room"); roomName != "" {
		if cmd.Bool("create") {
			if err := send(c, network.EventCreateRoom, roomName); err != nil {
				return err
			}
		}
		event := network.EventJoinRoom
		if cmd.Bool("spectate") {
			event = network.EventSpectateRoom
		}
		req := map[string]string{"roomName": roomName, "data": name}
		if err := send(c, event, req); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			log.Println("Interrupted, closing connection.")
			return c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		case line := <-lines:
			event, payload, _ := strings.Cut(strings.TrimSpace(line), " ")
			if event == "" {
				continue
			}
			var data json.RawMessage
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					log.Printf("Payload is not valid JSON: %s", payload)
					continue
				}
				data = json.RawMessage(payload)
			}
			if err := send(c, event, data); err != nil {
				return err
			}
		}
	}
}
