package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chatline/chatline-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/v1/users/login")
	group := flag.String("group", "", "chat group id to join")
	flag.Parse()

	if *token == "" || *group == "" {
		return errors.New("both -token and -group are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.JoinGroupData{GroupIDs: []string{*group}})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoinGroup, Data: joinPayload}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	fmt.Printf("Connected to %s in group %s\n", *addr, *group)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *group)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Event {
		case proto.OutboundEventNewMessage:
			var evt proto.StoredMessage
			if err := reshape(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal new_message: %v", err)
				continue
			}
			fmt.Printf("[%s] user %d: %s\n", evt.CreatedAt.Format(time.Kitchen), evt.Sender, evt.Content)
		case proto.OutboundEventUserTyping:
			var evt proto.TypingEvent
			if err := reshape(outbound.Data, &evt); err != nil {
				continue
			}
			fmt.Printf("user %d is typing...\n", evt.UserID)
		case proto.OutboundEventMessageSeen:
			var evt proto.MessageSeenEvent
			if err := reshape(outbound.Data, &evt); err != nil {
				continue
			}
			fmt.Printf("user %d saw message %d\n", evt.UserID, evt.MessageID)
		case proto.OutboundEventUserOnline, proto.OutboundEventUserOffline:
			var evt proto.PresenceEvent
			if err := reshape(outbound.Data, &evt); err != nil {
				continue
			}
			fmt.Printf("user %d is %s\n", evt.UserID, strings.TrimPrefix(outbound.Event, "user_"))
		case proto.OutboundEventError:
			fmt.Printf("server error: %v\n", outbound.Data)
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

// reshape converts the loosely decoded Data field into a typed event.
func reshape(data any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, group string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{ChatgroupID: group, Content: text})
			if err != nil {
				log.Printf("marshal msg: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
