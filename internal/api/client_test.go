package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testOpts(url string, stream bool) ChatOptions {
	return ChatOptions{BaseURL: url, APIKey: "test-key", Model: "deepseek-chat", Stream: stream}
}

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"deepseek-chat",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	completion, err := client.Chat(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hello"}}, testOpts(srv.URL, false))
	if err != nil {
		t.Fatal(err)
	}
	if completion.First().Content != "hi" {
		t.Errorf("content = %q", completion.First().Content)
	}
	if completion.Usage.TotalTokens != 2 {
		t.Errorf("usage = %+v", completion.Usage)
	}
}

func TestChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"Insufficient Balance"}}`))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, err := client.Chat(context.Background(), nil, testOpts(srv.URL, false))
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if ue.Message != "Insufficient Balance" {
		t.Errorf("message = %q", ue.Message)
	}
}

func TestChatStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n"))
		w.Write([]byte(": keep-alive comment\n\n"))
		w.Write([]byte("data: {\"id\":\"c1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":5}}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	completion, err := client.Chat(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hello"}}, testOpts(srv.URL, true))
	if err != nil {
		t.Fatal(err)
	}
	if got := completion.First().Content; got != "Hello" {
		t.Errorf("content = %q, want %q", got, "Hello")
	}
	if completion.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q", completion.Choices[0].FinishReason)
	}
	if completion.Usage == nil || completion.Usage.TotalTokens != 5 {
		t.Errorf("usage = %+v", completion.Usage)
	}
}

func TestChatStreamingMalformedChunkSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {not json}\n"))
		w.Write([]byte("data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}\n"))
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	completion, err := client.Chat(context.Background(), nil, testOpts(srv.URL, true))
	if err != nil {
		t.Fatal(err)
	}
	if got := completion.First().Content; got != "ok" {
		t.Errorf("content = %q, want %q", got, "ok")
	}
}

func TestChatStreamingImmediateDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, err := client.Chat(context.Background(), nil, testOpts(srv.URL, true))
	if !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestChatStreamingErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bogus: not sse\n"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, err := client.Chat(context.Background(), nil, testOpts(srv.URL, true))
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}

func TestSystemPromptPrepended(t *testing.T) {
	opts := ChatOptions{Model: "deepseek-chat", Prompt: "be nice"}
	body := opts.body([]ChatMessage{{Role: RoleUser, Content: "hi"}})

	messages := body["messages"].([]ChatMessage)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Role != RoleSystem || messages[0].Content != "be nice" {
		t.Errorf("system message = %+v", messages[0])
	}
}

func TestNotGivenParamsOmitted(t *testing.T) {
	opts := ChatOptions{Model: "m", Logprobs: Some(false), MaxTokens: Some(100)}
	body := opts.body(nil)

	if v, ok := body["logprobs"]; !ok || v != false {
		t.Errorf("explicit logprobs=false must survive, got %v present=%v", v, ok)
	}
	if v, ok := body["max_tokens"]; !ok || v != 100 {
		t.Errorf("max_tokens = %v present=%v", v, ok)
	}
	for _, key := range []string{"temperature", "top_p", "frequency_penalty", "presence_penalty", "top_logprobs", "stop"} {
		if _, ok := body[key]; ok {
			t.Errorf("unset parameter %q must be omitted", key)
		}
	}
}

func TestQueryBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/balance" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"is_available":true,"balance_infos":[{"currency":"CNY","total_balance":"110.00","granted_balance":"10.00","topped_up_balance":"100.00"}]}`))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	balance, err := client.QueryBalance(context.Background(), srv.URL, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.IsAvailable || len(balance.BalanceInfos) != 1 {
		t.Fatalf("balance = %+v", balance)
	}
	if balance.BalanceInfos[0].Currency != "CNY" {
		t.Errorf("currency = %q", balance.BalanceInfos[0].Currency)
	}
}

func TestQueryBalanceUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, err := client.QueryBalance(context.Background(), srv.URL, "k")
	if !errors.Is(err, ErrBalanceUnsupported) {
		t.Errorf("err = %v, want ErrBalanceUnsupported", err)
	}
}
