package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/chatline-server/internal/proto"
)

// ws_chat logs in over REST, opens the socket and chats in a single chat.
// Lines typed on stdin are sent as messages; typing indicators wrap each send.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

type incoming struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "password123", "password")
	chat := flag.Int64("chat", 0, "chat id to join")
	flag.Parse()

	if *chat <= 0 {
		return errors.New("-chat is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := login(ctx, *base, *user, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	chatID := strconv.FormatInt(*chat, 10)
	if err := sendInbound(ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{RoomID: chatID}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in chat %s\n", *base, *user, chatID)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *base, token, chatID)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func login(ctx context.Context, base, user, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": user, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login: %w", err)
	}
	return out.Token, nil
}

func sendInbound(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var in incoming
		if err := wsjson.Read(ctx, conn, &in); err != nil {
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

		if in.Type == proto.OutboundTypeError && in.Error != nil {
			fmt.Printf("! %s: %s\n", in.Error.Code, in.Error.Msg)
			continue
		}

		switch in.Event {
		case "message-received", "message-sent":
			var payload struct {
				Message proto.MessageResponse `json:"message"`
			}
			if err := json.Unmarshal(in.Data, &payload); err != nil {
				log.Printf("unmarshal %s: %v", in.Event, err)
				continue
			}
			fmt.Printf("[chat %d] user %d: %s\n", payload.Message.ChatID, payload.Message.SenderID, payload.Message.Text)
		case "typing-start", "typing-stop":
			var payload map[string]string
			if err := json.Unmarshal(in.Data, &payload); err != nil {
				continue
			}
			verb := "is typing"
			if in.Event == "typing-stop" {
				verb = "stopped typing"
			}
			fmt.Printf("[chat %s] user %s %s\n", payload["chat_id"], payload["user_id"], verb)
		default:
			fmt.Printf("event=%s data=%s\n", in.Event, in.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, base, token, chatID string) {
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

			typing := proto.TypingData{ChatID: chatID}
			if err := sendInbound(ctx, conn, proto.InboundTypeTypingStart, typing); err != nil {
				log.Print(err)
				return
			}
			if err := postMessage(ctx, base, token, chatID, text); err != nil {
				log.Printf("send error: %v", err)
			}
			if err := sendInbound(ctx, conn, proto.InboundTypeTypingStop, typing); err != nil {
				log.Print(err)
				return
			}
		}
	}
}

func postMessage(ctx context.Context, base, token, chatID, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/chats/"+chatID+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
