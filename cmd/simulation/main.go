package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

const baseURL = "http://localhost:3000/api"

// Set SIM_ACCESS_TOKEN to a valid JWT before running.
var accessToken = os.Getenv("SIM_ACCESS_TOKEN")

// Simplified DTOs for the script
type chatRequest struct {
	ConversationId string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Debug          bool   `json:"debug,omitempty"`
}

type chatResponse struct {
	Data struct {
		ConversationId string `json:"conversation_id"`
		Reply          struct {
			Content string `json:"content"`
		} `json:"reply"`
	} `json:"data"`
}

type streamFrame struct {
	Status    string          `json:"status"`
	Content   json.RawMessage `json:"content"`
	RequestId string          `json:"request_id"`
}

func main() {
	color.Cyan("=== Conversational Turn Simulation Client ===")
	if accessToken == "" {
		log.Fatal("SIM_ACCESS_TOKEN is not set")
	}

	// 1. Blocking turn first: creates the conversation implicitly.
	color.Yellow("\n[1] Blocking turn")
	conversationId, err := sendChat("", "推荐几部像《盗梦空间》那样的科幻电影")
	if err != nil {
		log.Fatalf("Blocking turn failed: %v", err)
	}
	color.Green("Conversation: %s", conversationId)

	// 2. Streamed follow-up on the same conversation.
	color.Yellow("\n[2] Streamed turn")
	if err := streamChat(conversationId, "把第一部加入我的片单"); err != nil {
		color.Red("Stream failed: %v", err)
		os.Exit(1)
	}
}

func sendChat(conversationId, text string) (string, error) {
	payload, _ := json.Marshal(chatRequest{ConversationId: conversationId, Message: text})

	req, _ := http.NewRequest("POST", baseURL+"/conversations/chat", bytes.NewBuffer(payload))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API Error %d: %s", resp.StatusCode, string(body))
	}

	var res chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	fmt.Printf("USER: %s\n", text)
	fmt.Printf("AI (%v): %s\n", time.Since(start), res.Data.Reply.Content)
	return res.Data.ConversationId, nil
}

func streamChat(conversationId, text string) error {
	payload, _ := json.Marshal(chatRequest{ConversationId: conversationId, Message: text})

	req, _ := http.NewRequest("POST", baseURL+"/conversations/chat/stream", bytes.NewBuffer(payload))
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API Error %d: %s", resp.StatusCode, string(body))
	}

	fmt.Printf("USER: %s\n", text)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var frame streamFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			color.Red("bad frame: %s", scanner.Text())
			continue
		}

		switch frame.Status {
		case "token":
			var token string
			json.Unmarshal(frame.Content, &token)
			fmt.Print(token)
		case "done":
			fmt.Println()
			color.Green("[done] request_id=%s", frame.RequestId)
		case "error":
			color.Red("\n[error] %s", string(frame.Content))
		default:
			color.Blue("[%s] %s", frame.Status, string(frame.Content))
		}
	}
	return scanner.Err()
}
