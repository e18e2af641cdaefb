package notification

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Pusher delivers a push message to a single device token.
type Pusher interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// ExpoPusher sends through the Expo push gateway, which fronts APNs/FCM
// for the mobile client's tokens.
type ExpoPusher struct {
	http *resty.Client
	url  string
}

var _ Pusher = (*ExpoPusher)(nil)

func NewExpoPusher(client *resty.Client) *ExpoPusher {
	return &ExpoPusher{
		http: client,
		url:  expoPushURL,
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type expoResponse struct {
	Data expoTicket `json:"data"`
}

type expoError struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e expoError) Error() string {
	if len(e.Errors) == 0 {
		return "expo push failed"
	}
	return fmt.Sprintf("%s: %s", e.Errors[0].Code, e.Errors[0].Message)
}

func (p *ExpoPusher) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	result := &expoResponse{}
	responseError := &expoError{}
	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(expoMessage{
			To:    token,
			Title: title,
			Body:  body,
			Data:  data,
			Sound: "default",
		}).
		SetResult(result).
		SetError(responseError).
		Post(p.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("error sending push: %w", responseError)
	}
	if result.Data.Status == "error" {
		return fmt.Errorf("push rejected: %s", result.Data.Message)
	}
	return nil
}
