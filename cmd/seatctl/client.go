package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"ms-booking/internal/models"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Reason  string          `json:"reason"`
}

// Client talks to the booking service HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SeatMap(screeningID string) ([]models.SeatView, error) {
	var seats []models.SeatView
	err := c.do(http.MethodGet, "/api/screenings/"+url.PathEscape(screeningID)+"/seats", nil, &seats)
	return seats, err
}

func (c *Client) Screenings(movieID string) ([]models.Screening, error) {
	path := "/api/screenings"
	if movieID != "" {
		path += "?movie_id=" + url.QueryEscape(movieID)
	}
	var screenings []models.Screening
	err := c.do(http.MethodGet, path, nil, &screenings)
	return screenings, err
}

func (c *Client) Bookings(userID, screeningID string) ([]models.Booking, error) {
	query := url.Values{}
	if userID != "" {
		query.Set("user_id", userID)
	}
	if screeningID != "" {
		query.Set("screening_id", screeningID)
	}
	var bookings []models.Booking
	err := c.do(http.MethodGet, "/api/bookings?"+query.Encode(), nil, &bookings)
	return bookings, err
}

func (c *Client) Cancel(bookingID string) (*models.Booking, error) {
	var booking models.Booking
	if err := c.do(http.MethodPost, "/api/bookings/"+url.PathEscape(bookingID)+"/cancel", nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: unexpected response (%d)", method, path, res.StatusCode)
	}
	if res.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if env.Error != "" {
			msg += ": " + env.Error
		} else if env.Reason != "" {
			msg += " (" + env.Reason + ")"
		}
		return fmt.Errorf("%s %s: %d %s", method, path, res.StatusCode, msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
